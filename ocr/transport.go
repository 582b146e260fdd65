package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	tls "github.com/refraction-networking/utls"
)

// chromeH1Spec is Chrome's ClientHello with ALPN limited to http/1.1, since
// http.Transport cannot speak h2 over a utls connection.
var (
	chromeH1Spec  tls.ClientHelloSpec
	chromeSpecErr error
)

func init() {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		chromeSpecErr = err
		return
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	chromeH1Spec = spec
}

// newImageTransport returns a transport whose TLS handshake looks like
// Chrome's. Captcha images are often served from the same CDN that fronts
// the challenge, which rejects Go's default fingerprint. Without a usable
// spec it falls back to Go's default transport.
func newImageTransport(spec *tls.ClientHelloSpec, specErr error, logger *slog.Logger) *http.Transport {
	if specErr != nil {
		logger.Warn("chrome TLS fingerprint unavailable, downloading captcha images with Go's default TLS", "error", specErr)
		return http.DefaultTransport.(*http.Transport).Clone()
	}
	return &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			uconn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := uconn.ApplyPreset(spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ocr: apply tls spec: %w", err)
			}
			if err := uconn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return uconn, nil
		},
		ForceAttemptHTTP2:   false,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
	}
}
