// Package api provides the action-api node type and a net/http backed HTTP
// capability for it.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vk/flowgrid/internal/capability"
	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
	"github.com/vk/flowgrid/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Register registers the action-api node type.
func (m *Module) Register(r *registry.Registry) {
	r.Register(&registry.Definition{
		Type:     "action-api",
		Name:     "API Call",
		Icon:     "🌐",
		Category: registry.CategoryAction,
		Inputs:   []string{"trigger"},
		Outputs:  []string{"success", "error"},
		Defaults: map[string]any{
			"url":     "",
			"method":  http.MethodGet,
			"headers": map[string]any{},
			"body":    "",
			"timeout": 0,
		},
		Behavior: registry.BehaviorFunc(onRequest),

		Templates: []string{"url", "body"},
	})
}

// onRequest performs the configured request through the HTTP capability.
// Transport failures and non-2xx answers are routed to the error port.
func onRequest(ctx context.Context, nc *registry.Context) (model.NodeResult, error) {
	fail := func(msg string, data any) (model.NodeResult, error) {
		return model.NodeResult{Success: false, Output: "error", Error: msg, Data: data}, nil
	}

	if nc.Caps.HTTP == nil {
		return fail("no HTTP capability configured", nil)
	}
	url, err := nc.RenderString("url")
	if err != nil {
		return fail(err.Error(), nil)
	}
	if url == "" {
		return fail("url is required", nil)
	}
	body, err := nc.RenderString("body")
	if err != nil {
		return fail(err.Error(), nil)
	}
	timeoutMS, err := nc.Int("timeout")
	if err != nil {
		return fail(err.Error(), nil)
	}

	method := strings.ToUpper(nc.String("method"))
	if method == "" {
		method = http.MethodGet
	}
	req := capability.HTTPRequest{URL: url, Method: method, Headers: nc.StringMap("headers")}
	if method != http.MethodGet {
		req.Body = body
	}

	if timeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMS)*time.Millisecond)
		defer cancel()
	}

	logger := ctxlog.FromContext(ctx)
	logger.Debug("Making HTTP request", "method", method, "url", url)
	resp, err := nc.Caps.HTTP.Request(ctx, req)
	if err != nil {
		logger.Warn("HTTP request failed.", "error", err)
		return fail(err.Error(), nil)
	}
	logger.Debug("Received HTTP response", "status", resp.Status)

	data := map[string]any{"status": resp.Status, "json": resp.JSON}
	if resp.JSON == nil && len(resp.Body) > 0 {
		data["body"] = string(resp.Body)
	}
	if !resp.OK() {
		return fail(fmt.Sprintf("HTTP %d", resp.Status), data)
	}
	return model.NodeResult{Success: true, Output: "success", Data: data}, nil
}
