package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/browserfetch/models"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestCache(t *testing.T, max int) (*Cache, *clock) {
	t.Helper()
	c := New(max)
	t.Cleanup(c.Close)
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clk.now
	return c, clk
}

func TestKey_DependsOnEveryPart(t *testing.T) {
	base := Key("https://example.com", "html", "")
	assert.Equal(t, base, Key("https://example.com", "html", ""))
	assert.NotEqual(t, base, Key("https://example.com", "markdown", ""))
	assert.NotEqual(t, base, Key("https://example.com", "html", "#main"))
	assert.NotEqual(t, base, Key("https://example.com", "html", "", "sid=1"))
}

func TestKey_PartBoundariesMatter(t *testing.T) {
	assert.NotEqual(t, Key("ab", "c"), Key("a", "bc"))
}

func TestGet_RespectsMaxAge(t *testing.T) {
	c, clk := newTestCache(t, 10)
	resp := &models.FetchResponse{Success: true, Content: "<html></html>"}
	c.Set("k", resp)

	_, ok := c.Get("k", 0)
	assert.False(t, ok, "max_age 0 disables the cache")

	got, ok := c.Get("k", 1000)
	require.True(t, ok)
	assert.Same(t, resp, got)

	clk.t = clk.t.Add(1500 * time.Millisecond)
	_, ok = c.Get("k", 1000)
	assert.False(t, ok)

	_, ok = c.Get("missing", 1000)
	assert.False(t, ok)
}

func TestSet_EvictsOldest(t *testing.T) {
	c, clk := newTestCache(t, 2)
	c.Set("a", &models.FetchResponse{})
	clk.t = clk.t.Add(time.Second)
	c.Set("b", &models.FetchResponse{})
	clk.t = clk.t.Add(time.Second)
	c.Set("c", &models.FetchResponse{})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a", 60_000)
	assert.False(t, ok)
	_, ok = c.Get("c", 60_000)
	assert.True(t, ok)
}

func TestSweep_DropsExpired(t *testing.T) {
	c, clk := newTestCache(t, 10)
	c.Set("old", &models.FetchResponse{})
	clk.t = clk.t.Add(2 * time.Hour)
	c.Set("new", &models.FetchResponse{})

	c.sweep()
	assert.Equal(t, 1, c.Len())
}
