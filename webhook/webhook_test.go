package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig, gotUA, gotEvent, gotJob string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotUA = r.Header.Get("User-Agent")
		gotEvent = r.Header.Get(EventHeader)
		gotJob = r.Header.Get(JobHeader)
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ev := NewEvent(EventFetchCompleted, "job-1", map[string]string{"url": "https://example.com"})
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Equal(t, "sha256="+Sign("s3cret", gotBody), gotSig)
	assert.Equal(t, "Browserfetch-Webhook/1.0", gotUA)
	assert.Equal(t, EventFetchCompleted, gotEvent)
	assert.Equal(t, "job-1", gotJob)

	var decoded Event
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, EventFetchCompleted, decoded.Type)
	assert.Equal(t, "job-1", decoded.JobID)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", NewEvent(EventFetchFailed, "j", nil)))
	assert.Empty(t, gotSig)
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", NewEvent(EventFetchFailed, "j", nil))
	assert.ErrorContains(t, err, "status 502")

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Code)
	assert.True(t, se.Temporary())
}

func TestDeliver_DoesNotFollowRedirects(t *testing.T) {
	var followed atomic.Bool
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		followed.Store(true)
	}))
	defer target.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL, http.StatusTemporaryRedirect)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "s3cret", NewEvent(EventFetchCompleted, "j", nil))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTemporaryRedirect, se.Code)
	assert.False(t, se.Temporary())
	assert.False(t, followed.Load())
}

func TestStatusError_Temporary(t *testing.T) {
	for code, want := range map[int]bool{
		http.StatusBadRequest:          false,
		http.StatusUnauthorized:        false,
		http.StatusNotFound:            false,
		http.StatusGone:                false,
		http.StatusRequestTimeout:      true,
		http.StatusTooManyRequests:     true,
		http.StatusInternalServerError: true,
		http.StatusServiceUnavailable:  true,
	} {
		assert.Equal(t, want, (&StatusError{Code: code}).Temporary(), "status %d", code)
	}
}

func TestDeliverAsync_Retries(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	done := DeliverAsync(srv.URL, "", NewEvent(EventFetchCompleted, "j", nil))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestDeliverAsync_StopsOnRejection(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	done := DeliverAsync(srv.URL, "", NewEvent(EventFetchFailed, "j", nil))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestDeliverAsync_RetriesThrottledEndpoint(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{0, time.Millisecond, time.Millisecond}
	t.Cleanup(func() { retryDelays = orig })

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	done := DeliverAsync(srv.URL, "", NewEvent(EventFetchCompleted, "j", nil))
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), hits.Load())
}
