package testutil

import (
	"context"
	"sync"

	"github.com/vk/flowgrid/internal/capability"
)

// FakeHTTP answers every request with Response, or fails with Err.
type FakeHTTP struct {
	Response *capability.HTTPResponse
	Err      error

	mu       sync.Mutex
	requests []capability.HTTPRequest
}

func (f *FakeHTTP) Request(_ context.Context, req capability.HTTPRequest) (*capability.HTTPResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Response == nil {
		return &capability.HTTPResponse{Status: 200}, nil
	}
	return f.Response, nil
}

// Requests returns every request received.
func (f *FakeHTTP) Requests() []capability.HTTPRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capability.HTTPRequest(nil), f.requests...)
}

// FakeMessenger records sent messages, or fails with Err.
type FakeMessenger struct {
	Err error

	mu       sync.Mutex
	messages []string
}

func (f *FakeMessenger) SendMessage(_ context.Context, text string) error {
	if f.Err != nil {
		return f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	return nil
}

// Messages returns every message sent.
func (f *FakeMessenger) Messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

// Notification is one recorded Notify call.
type Notification struct {
	Message string
	Level   capability.Level
}

// FakeNotifier records notifications.
type FakeNotifier struct {
	mu    sync.Mutex
	items []Notification
}

func (f *FakeNotifier) Notify(_ context.Context, message string, level capability.Level) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append(f.items, Notification{Message: message, Level: level})
	return nil
}

// Notifications returns every notification received.
func (f *FakeNotifier) Notifications() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Notification(nil), f.items...)
}

// Fakes bundles one fake per capability.
type Fakes struct {
	HTTP      *FakeHTTP
	Messenger *FakeMessenger
	Notifier  *FakeNotifier
}

// NewFakes creates a fresh set of fakes.
func NewFakes() *Fakes {
	return &Fakes{HTTP: &FakeHTTP{}, Messenger: &FakeMessenger{}, Notifier: &FakeNotifier{}}
}

// Set returns the fakes as a capability set.
func (f *Fakes) Set() capability.Set {
	return capability.Set{Messenger: f.Messenger, HTTP: f.HTTP, Notifier: f.Notifier}
}
