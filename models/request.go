package models

// ProxyRequest describes an upstream proxy for a single fetch.
type ProxyRequest struct {
	// Server is the proxy URL, e.g. "http://host:3128" or "socks5://host:1080".
	Server string `json:"server" binding:"required"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Bypass is a comma-separated list of hosts that skip the proxy.
	Bypass string `json:"bypass,omitempty"`
}

// FetchRequest is the payload for POST /api/v1/fetch.
type FetchRequest struct {
	// URL is the target page to render. Required.
	URL string `json:"url" binding:"required,url"`

	// Cookies is a raw Cookie header value sent with every request of the page.
	Cookies string `json:"cookies,omitempty"`

	// UserAgent overrides the browser user agent for this fetch.
	UserAgent string `json:"user_agent,omitempty"`

	// Proxy overrides the default proxy for this fetch.
	Proxy *ProxyRequest `json:"proxy,omitempty"`

	// Headless runs the browser without a window. Default: the server setting.
	Headless *bool `json:"headless,omitempty"`

	// Timeout bounds the network-idle wait, in seconds. Max: 120.
	// Default: the server's html_timeout.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// OutputFormat controls the response body format.
	// Allowed: "html" (default), "markdown", "text".
	OutputFormat string `json:"output_format,omitempty" binding:"omitempty,oneof=html markdown text"`

	// CSSSelector narrows the rendered document before formatting.
	CSSSelector string `json:"css_selector,omitempty"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned without launching a browser.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *FetchRequest) Defaults() {
	if r.OutputFormat == "" {
		r.OutputFormat = "html"
	}
}

// AsyncFetchRequest is the payload for POST /api/v1/fetch/async.
type AsyncFetchRequest struct {
	FetchRequest

	// WebhookURL receives a fetch.completed or fetch.failed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}
