package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/browserfetch/models"
)

func ocrServer(t *testing.T, result string, got *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/captcha/base64", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*got = body["base64_img"]

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCaptchaText_Base64(t *testing.T) {
	var sent string
	srv := ocrServer(t, "x7k2", &sent)

	text, err := New(srv.URL+"/").CaptchaText(context.Background(), Request{ImageB64: "aGVsbG8="})
	require.NoError(t, err)
	assert.Equal(t, "x7k2", text)
	assert.Equal(t, "aGVsbG8=", sent)
}

func TestCaptchaText_DownloadsImageWithCookieAndUA(t *testing.T) {
	img := []byte{0x89, 'P', 'N', 'G'}
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sid=1", r.Header.Get("Cookie"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write(img)
	}))
	defer images.Close()

	var sent string
	srv := ocrServer(t, "abcd", &sent)

	text, err := New(srv.URL).CaptchaText(context.Background(), Request{
		ImageURL:  images.URL + "/captcha.png",
		ImageB64:  "ignored",
		Cookie:    "sid=1",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
	assert.Equal(t, base64.StdEncoding.EncodeToString(img), sent)
}

func TestCaptchaText_EmptyDownload(t *testing.T) {
	images := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer images.Close()

	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	text, err := New(srv.URL).CaptchaText(context.Background(), Request{ImageURL: images.URL})
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.False(t, called)
}

func TestCaptchaText_NoImage(t *testing.T) {
	_, err := New("http://unused").CaptchaText(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoImage)
}

func TestCaptchaText_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CaptchaText(context.Background(), Request{ImageB64: "aGk="})
	var fe *models.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.ErrCodeOCR, fe.Code)
}

func TestChromeSpecLimitsALPN(t *testing.T) {
	require.NotEmpty(t, chromeH1Spec.Extensions)
	require.NoError(t, chromeSpecErr)
	assert.NotNil(t, newImageTransport(&chromeH1Spec, nil, slog.Default()).DialTLSContext)
}

func TestImageTransport_FallsBackWithoutSpec(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	tr := newImageTransport(nil, errors.New("unknown hello id"), logger)
	require.NotNil(t, tr)
	assert.Nil(t, tr.DialTLSContext)
	assert.Contains(t, logs.String(), "unknown hello id")
}
