package session

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/browserfetch/browser"
	"github.com/use-agent/browserfetch/browser/browsertest"
	"github.com/use-agent/browserfetch/models"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpen_AcquiresInOrder(t *testing.T) {
	d := browsertest.New("Example", "<html></html>")
	m := NewManager(d, browser.Firefox, quietLogger())

	s, err := m.Open(Config{
		Headless: true,
		Context:  browser.ContextOptions{UserAgent: "ua/1", Proxy: &browser.Proxy{Server: "http://p:8080"}},
	})
	require.NoError(t, err)
	require.NotNil(t, s.Page())

	assert.Equal(t, PageOpen, s.State())
	assert.Equal(t, []string{"process.launch firefox", "context.new", "page.new"}, d.Calls())
	assert.Equal(t, []browsertest.Launch{{Engine: browser.Firefox, Headless: true}}, d.Launches())
	require.Len(t, d.Contexts(), 1)
	assert.Equal(t, "ua/1", d.Contexts()[0].UserAgent)
	assert.Equal(t, "http://p:8080", d.Contexts()[0].Proxy.Server)

	require.NoError(t, s.Close())
	assert.Equal(t, []string{"page.close", "context.close", "process.close"}, d.Closes())
	assert.Equal(t, TornDown, s.State())
}

func TestOpen_PartialConstructionTearsDownOnlyWhatExists(t *testing.T) {
	tests := []struct {
		name       string
		failAt     browsertest.Step
		wantCloses []string
	}{
		{"launch", browsertest.StepLaunch, nil},
		{"context", browsertest.StepNewContext, []string{"process.close"}},
		{"page", browsertest.StepNewPage, []string{"context.close", "process.close"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := browsertest.New("", "")
			d.Fail(tt.failAt, errors.New("boom"))

			s, err := NewManager(d, browser.Chromium, quietLogger()).Open(Config{})
			assert.Nil(t, s)

			var fe *models.FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, models.ErrCodeDriverInit, fe.Code)
			assert.Equal(t, tt.wantCloses, d.Closes())
		})
	}
}

func TestOpen_PanicUnwindsBuiltResources(t *testing.T) {
	d := browsertest.New("", "")
	d.Panic(browsertest.StepNewPage, "driver exploded")

	assert.PanicsWithValue(t, "driver exploded", func() {
		_, _ = NewManager(d, browser.Chromium, quietLogger()).Open(Config{})
	})
	assert.Equal(t, []string{"context.close", "process.close"}, d.Closes())
}

func TestClose_RunsEveryGuardDespiteFailures(t *testing.T) {
	d := browsertest.New("", "")
	s, err := NewManager(d, browser.Chromium, quietLogger()).Open(Config{})
	require.NoError(t, err)

	d.Fail(browsertest.StepClosePage, errors.New("page gone"))
	d.Panic(browsertest.StepCloseContext, "context panic")

	err = s.Close()
	require.Error(t, err)

	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.ErrCodeTeardown, fe.Code)
	assert.Contains(t, err.Error(), "page gone")
	assert.Contains(t, err.Error(), "context panic")
	assert.Equal(t, []string{"page.close", "context.close", "process.close"}, d.Closes())
}

func TestClose_Idempotent(t *testing.T) {
	d := browsertest.New("", "")
	s, err := NewManager(d, browser.Chromium, quietLogger()).Open(Config{})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 1, d.Count(browsertest.StepClosePage))
	assert.Equal(t, 1, d.Count(browsertest.StepCloseContext))
	assert.Equal(t, 1, d.Count(browsertest.StepCloseProcess))
}

func TestMark_IgnoredAfterClose(t *testing.T) {
	d := browsertest.New("", "")
	s, err := NewManager(d, browser.Chromium, quietLogger()).Open(Config{})
	require.NoError(t, err)

	s.Mark(ChallengeAttempted)
	assert.Equal(t, ChallengeAttempted, s.State())

	require.NoError(t, s.Close())
	s.Mark(Extracted)
	assert.Equal(t, TornDown, s.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "CHALLENGE_ATTEMPTED", ChallengeAttempted.String())
	assert.Equal(t, "TORN_DOWN", TornDown.String())
	assert.Equal(t, "State(42)", State(42).String())
}
