package cloner

// EventType tags a progress event emitted during a clone run.
type EventType string

const (
	EventPage    EventType = "page"
	EventAsset   EventType = "asset"
	EventSkip    EventType = "skip"
	EventFailure EventType = "failure"
	EventSummary EventType = "summary"
)

// Event is one progress notification. Counts are the totals at the moment
// the event was emitted, so consumers can render progress without keeping
// their own tally.
type Event struct {
	Type    EventType `json:"type"`
	URL     string    `json:"url,omitempty"`
	Path    string    `json:"path,omitempty"`
	Message string    `json:"message,omitempty"`

	Pages   int `json:"pages"`
	Assets  int `json:"assets"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Failure pairs a URL with the error that ended its fetch.
type Failure struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}
