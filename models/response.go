package models

// FetchResponse is the response for POST /api/v1/fetch.
type FetchResponse struct {
	// Success indicates whether the page was fetched.
	Success bool `json:"success"`

	// Content is the rendered document in the requested output format.
	Content string `json:"content"`

	// Metadata contains page-level information.
	Metadata Metadata `json:"metadata"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// Metadata holds page-level information extracted from the rendered document.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"source_url"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// FetchMs is the time spent in the browser (launch to teardown).
	FetchMs int64 `json:"fetch_ms"`

	// FormatMs is the time spent converting the document to the output format.
	FormatMs int64 `json:"format_ms"`
}

// Job status values for asynchronous fetches.
const (
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// AsyncFetchResponse is returned by POST /api/v1/fetch/async and
// GET /api/v1/fetch/:id.
type AsyncFetchResponse struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	URL    string         `json:"url"`
	Result *FetchResponse `json:"result,omitempty"`
	Error  *ErrorDetail   `json:"error,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string      `json:"status"` // "healthy" or "degraded"
	Uptime  string      `json:"uptime"`
	Browser BrowserInfo `json:"browser"`
	Version string      `json:"version"`
}

// BrowserInfo reports the fixed browser configuration and current load.
type BrowserInfo struct {
	Driver        string `json:"driver"`
	Engine        string `json:"engine"`
	InFlight      int    `json:"in_flight"`
	MaxConcurrent int    `json:"max_concurrent"`
}
