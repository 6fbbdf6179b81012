// Package filtering decides, for each UI change reported by a browser,
// whether the displayed address is restricted and where to send the browser
// instead.
package filtering

// ChangeType is the content-change bitmask carried by an accessibility event.
type ChangeType uint32

const (
	// ChangeSubtree reports that a node's subtree changed.
	ChangeSubtree ChangeType = 1 << 0
	// ChangeText reports that a node's text changed.
	ChangeText ChangeType = 1 << 1

	// checkChanges must all be present for an event to be evaluated.
	checkChanges = ChangeSubtree | ChangeText
)

// Node is one element of the flattened UI tree shipped with an event.
type Node struct {
	ViewID string `json:"view_id"`
	Text   string `json:"text"`
}

// Event is a single UI change observed on the device.
type Event struct {
	AppID       string     `json:"app_id"`
	ChangeTypes ChangeType `json:"change_types"`
	// EventTime is the platform's monotonic event time in milliseconds.
	EventTime int64    `json:"event_time"`
	Text      []string `json:"text,omitempty"`
	Nodes     []Node   `json:"nodes,omitempty"`
	// Address is set when the observer already extracted the address bar text.
	Address string `json:"address,omitempty"`
}

// FilterConfig is an immutable snapshot of the remotely managed settings.
type FilterConfig struct {
	// RestrictedAddress holds the substrings that trigger a redirect.
	RestrictedAddress        []string
	RedirectTo               string
	LockAccessibilityService bool
}

// DefaultFilterConfig returns the settings used until a remote configuration
// has been applied.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		RestrictedAddress:        []string{"google.com/search", "google.com/logos/", "www.google.com/logos/"},
		RedirectTo:               "https://example.com/",
		LockAccessibilityService: true,
	}
}

// Outcome is the action taken for an event.
type Outcome string

const (
	OutcomeIgnored    Outcome = "ignored"
	OutcomeLocked     Outcome = "settings_locked"
	OutcomeRedirected Outcome = "redirected"
)

// Reason explains why an event was ignored.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonUnsupportedApp Reason = "unsupported_app"
	ReasonNoAddress      Reason = "no_address"
	ReasonNoChange       Reason = "no_content_change"
	ReasonThrottled      Reason = "throttled"
	ReasonNoMatch        Reason = "no_match"
	ReasonEmptyTarget    Reason = "empty_target"
	ReasonDispatchFailed Reason = "dispatch_failed"
	ReasonPanic          Reason = "panic"
)

// Decision describes what the engine did with one event.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// URL is the captured address, Target the redirect destination.
	URL    string
	Target string
	AppID  string
	// Entry is the restricted substring that matched.
	Entry string
	// Fallback is set when the redirect was sent without a target app.
	Fallback bool
}

func ignored(reason Reason) Decision {
	return Decision{Outcome: OutcomeIgnored, Reason: reason}
}
