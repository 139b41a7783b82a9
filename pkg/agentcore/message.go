package agentcore

import "time"

// Kind distinguishes the three message shapes a role emits: exactly one
// activation, any number of intermediate messages, and exactly one
// completion — unless the stream is cut short by cancellation, in which
// case the completion is never sent.
type Kind string

const (
	KindActivation   Kind = "activation"
	KindIntermediate Kind = "intermediate"
	KindCompletion   Kind = "completion"
)

// Message is one event in an agent's output stream. Section doubles as a
// lightweight tag field: agents use it both for genuine section labels
// ("transliteration", "era_estimate") and for the fixed tags the contract
// requires ("fallback", "no_input").
type Message struct {
	Role          Role           `json:"role"`
	Kind          Kind           `json:"-"`
	Text          string         `json:"text"`
	Timestamp     time.Time      `json:"timestamp"`
	Confidence    *int           `json:"confidence,omitempty"`
	Section       string         `json:"section,omitempty"`
	Collaboration bool           `json:"collaboration,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Option customizes an intermediate or completion message emitted through
// an Emitter.
type Option func(*Message)

func WithConfidence(c int) Option {
	return func(m *Message) { m.Confidence = &c }
}

func WithSection(section string) Option {
	return func(m *Message) { m.Section = section }
}

func WithMetadata(key string, value any) Option {
	return func(m *Message) {
		if m.Metadata == nil {
			m.Metadata = make(map[string]any, 1)
		}
		m.Metadata[key] = value
	}
}

// Fallback tags a message as the degraded-path notice rule 7 of the agent
// contract requires whenever a model call was attempted and failed.
func Fallback() Option {
	return WithSection("fallback")
}

// NoInput tags the single completion message rule 5 of the agent contract
// requires when a role's required upstream field is absent.
func NoInput() Option {
	return WithSection("no_input")
}

// Emitter sends one intermediate message and reports whether it was
// delivered. A false return means the run was cancelled; the caller must
// stop producing further messages and return immediately without attempting
// a completion.
type Emitter func(text string, opts ...Option) bool
