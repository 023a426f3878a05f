package capture

import (
	"time"
)

// Mode selects how a page is captured.
type Mode string

// Supported capture modes.
const (
	ModeViewport  Mode = "viewport"
	ModeFullPage  Mode = "fullpage"
	ModeSegmented Mode = "segmented"
)

// Engine selects the browser launch profile.
type Engine string

// Supported engines.
const (
	EngineDefault Engine = "default"
	EngineAlt     Engine = "alt"
)

// Status is the terminal state of one URL.
type Status string

// Result statuses.
const (
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ErrorKind classifies a non-success result.
type ErrorKind string

// Error kinds attached to results and API errors.
const (
	KindInvalidInput        ErrorKind = "invalid_input"
	KindTimeout             ErrorKind = "timeout"
	KindDriver              ErrorKind = "driver"
	KindQuality             ErrorKind = "quality"
	KindCancelled           ErrorKind = "cancelled"
	KindStorageStateInvalid ErrorKind = "storage_state_invalid"
)

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// SegmentOptions tunes segmented capture.
type SegmentOptions struct {
	OverlapPercent int  `json:"overlap_percent"`
	ScrollDelayMs  int  `json:"scroll_delay_ms"`
	MaxSegments    int  `json:"max_segments"`
	SkipDuplicates bool `json:"skip_duplicates"`
	SmartLazyLoad  bool `json:"smart_lazy_load"`
}

// Default request values.
const (
	DefaultViewportWidth   = 1920
	DefaultViewportHeight  = 1080
	DefaultOverlapPercent  = 20
	DefaultScrollDelayMs   = 1000
	DefaultMaxSegments     = 50
	DefaultMaxParallelURLs = 5
)

// DefaultSegmentOptions returns the segmented tuning used when a caller sends none.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{
		OverlapPercent: DefaultOverlapPercent,
		ScrollDelayMs:  DefaultScrollDelayMs,
		MaxSegments:    DefaultMaxSegments,
		SkipDuplicates: true,
		SmartLazyLoad:  true,
	}
}

// Request is one caller-submitted capture batch. It is immutable once handed
// to the orchestrator.
type Request struct {
	URLs          []string       `json:"urls"`
	Viewport      Viewport       `json:"viewport"`
	Mode          Mode           `json:"capture_mode"`
	Engine        Engine         `json:"engine"`
	Stealth       bool           `json:"use_stealth"`
	RealBrowser   bool           `json:"use_real_browser"`
	BaseURL       string         `json:"base_url"`
	WordsToRemove string         `json:"words_to_remove"`
	Cookies       string         `json:"cookies"`
	LocalStorage  string         `json:"local_storage"`
	UseSavedAuth  bool           `json:"use_saved_auth"`
	Segment       SegmentOptions `json:"segment"`
	TrackNetwork  bool           `json:"track_network"`
	// BatchTimeoutSeconds overrides the mode-derived per-URL deadline when set.
	BatchTimeoutSeconds *int `json:"batch_timeout,omitempty"`
	MaxParallelURLs     int  `json:"max_parallel_urls"`
}

// DefaultRequest returns a request carrying every default, ready for a JSON
// body to be decoded over it.
func DefaultRequest() Request {
	return Request{
		Viewport:        Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		Mode:            ModeViewport,
		Engine:          EngineDefault,
		UseSavedAuth:    true,
		Segment:         DefaultSegmentOptions(),
		MaxParallelURLs: DefaultMaxParallelURLs,
	}
}

// WithDefaults fills zero-valued fields from DefaultRequest. An all-zero
// Segment takes every default; otherwise only fields whose zero value is out
// of range are filled, so an explicit zero overlap or scroll delay survives.
func (r Request) WithDefaults() Request {
	d := DefaultRequest()
	if r.Viewport.Width == 0 {
		r.Viewport.Width = d.Viewport.Width
	}
	if r.Viewport.Height == 0 {
		r.Viewport.Height = d.Viewport.Height
	}
	if r.Mode == "" {
		r.Mode = d.Mode
	}
	if r.Engine == "" {
		r.Engine = d.Engine
	}
	if r.Segment == (SegmentOptions{}) {
		r.Segment = d.Segment
	} else if r.Segment.MaxSegments == 0 {
		r.Segment.MaxSegments = d.Segment.MaxSegments
	}
	if r.MaxParallelURLs == 0 {
		r.MaxParallelURLs = d.MaxParallelURLs
	}
	return r
}

// Flags returns the mode switches that feed the timeout policy.
func (r Request) Flags() ModeFlags {
	return ModeFlags{
		RealBrowser: r.RealBrowser,
		AltEngine:   r.Engine == EngineAlt,
		Stealth:     r.Stealth,
		Segmented:   r.Mode == ModeSegmented,
	}
}

// ModeFlags are the request switches that influence deadlines.
type ModeFlags struct {
	RealBrowser bool
	AltEngine   bool
	Stealth     bool
	Segmented   bool
}

// Job is the per-URL unit of work derived inside a batch.
type Job struct {
	RequestID string
	URL       string
	Index     int
	Total     int
	Timeout   time.Duration
	Mode      Mode
	Engine    Engine
	Viewport  Viewport
	Stealth   bool
	Real      bool
	BaseURL   string
	// WordsToRemove is applied to artifact names only.
	WordsToRemove string
	Segment       SegmentOptions
	TrackNetwork  bool
	Auth          StorageState
}

// NetworkEvent is one request observed while a page loaded.
type NetworkEvent struct {
	Method       string `json:"method"`
	URL          string `json:"url"`
	ResourceType string `json:"resource_type,omitempty"`
	Status       int    `json:"status,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
}

// Result is the outcome for a single URL.
type Result struct {
	URL           string         `json:"url"`
	Status        Status         `json:"status"`
	PrimaryPath   string         `json:"screenshot_path,omitempty"`
	AllPaths      []string       `json:"screenshot_paths,omitempty"`
	SegmentCount  *int           `json:"segment_count,omitempty"`
	ErrorKind     ErrorKind      `json:"error_kind,omitempty"`
	Error         string         `json:"error,omitempty"`
	QualityScore  *float64       `json:"quality_score,omitempty"`
	QualityIssues []string       `json:"quality_issues,omitempty"`
	NetworkEvents []NetworkEvent `json:"network_events,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Clone returns a deep copy so event subscribers never share slices with the
// orchestrator's result slice.
func (r Result) Clone() Result {
	cp := r
	if r.AllPaths != nil {
		cp.AllPaths = append([]string(nil), r.AllPaths...)
	}
	if r.QualityIssues != nil {
		cp.QualityIssues = append([]string(nil), r.QualityIssues...)
	}
	if r.NetworkEvents != nil {
		cp.NetworkEvents = append([]NetworkEvent(nil), r.NetworkEvents...)
	}
	if r.SegmentCount != nil {
		n := *r.SegmentCount
		cp.SegmentCount = &n
	}
	if r.QualityScore != nil {
		s := *r.QualityScore
		cp.QualityScore = &s
	}
	return cp
}

// Envelope is the return value of one executed request.
type Envelope struct {
	Results   []Result `json:"results"`
	Cancelled bool     `json:"cancelled"`
	RequestID string   `json:"request_id"`
}

// Verdict is a quality checker's judgement of one artifact.
type Verdict struct {
	Passed bool     `json:"passed"`
	Score  float64  `json:"score"`
	Issues []string `json:"issues"`
}
