// Package capability declares the external services built-in node behaviors
// may call: a chat channel, an HTTP client and a notification sink. The engine
// never touches them directly; it only threads a Set into every node context.
// Concrete implementations live next to the node types that use them under
// modules/.
package capability

import "context"

// Level is the severity of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Messenger sends a chat message.
type Messenger interface {
	SendMessage(ctx context.Context, text string) error
}

// HTTPRequest describes one outbound request.
type HTTPRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

// HTTPResponse is the decoded answer of an HTTP capability. JSON is nil when
// the body was empty or not valid JSON.
type HTTPResponse struct {
	Status int
	JSON   any
	Body   []byte
}

// OK reports whether the status code is 2xx.
func (r *HTTPResponse) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// HTTPClient performs a request. Transport failures are returned as errors;
// non-2xx answers are not.
type HTTPClient interface {
	Request(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)
}

// Notifier surfaces a message to a human.
type Notifier interface {
	Notify(ctx context.Context, message string, level Level) error
}

// Set bundles the capabilities injected into node contexts. Any member may be
// nil; node behaviors decide how to degrade.
type Set struct {
	Messenger Messenger
	HTTP      HTTPClient
	Notifier  Notifier
}

// MessengerFunc adapts a function to the Messenger interface.
type MessengerFunc func(ctx context.Context, text string) error

func (f MessengerFunc) SendMessage(ctx context.Context, text string) error { return f(ctx, text) }

// HTTPClientFunc adapts a function to the HTTPClient interface.
type HTTPClientFunc func(ctx context.Context, req HTTPRequest) (*HTTPResponse, error)

func (f HTTPClientFunc) Request(ctx context.Context, req HTTPRequest) (*HTTPResponse, error) {
	return f(ctx, req)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message string, level Level) error

func (f NotifierFunc) Notify(ctx context.Context, message string, level Level) error {
	return f(ctx, message, level)
}
