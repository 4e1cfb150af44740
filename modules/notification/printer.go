package notification

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/ctxlog"
)

// Printer is a capability.Notifier that writes one line per notification.
type Printer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ capability.Notifier = (*Printer)(nil)

// NewPrinter creates a notifier writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Notify prints "[level] message".
func (p *Printer) Notify(ctx context.Context, message string, level capability.Level) error {
	ctxlog.FromContext(ctx).Debug("Printing notification", "level", level)
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := fmt.Fprintf(p.w, "[%s] %s\n", level, message)
	return err
}
