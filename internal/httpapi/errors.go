package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vk/flowgrid/internal/ctxlog"
	"github.com/vk/flowgrid/internal/model"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

// statusFor maps model errors onto HTTP status codes.
func statusFor(err error) int {
	var defErr *model.DefinitionError
	switch {
	case errors.As(err, &defErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrWorkflowNotFound),
		errors.Is(err, model.ErrNodeNotFound),
		errors.Is(err, model.ErrConnectionNotFound),
		errors.Is(err, model.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnknownNodeType),
		errors.Is(err, model.ErrUnknownOutputPort),
		errors.Is(err, model.ErrUnknownInputPort),
		errors.Is(err, model.ErrDuplicateNode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrWorkflowDisabled):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if msg, ok := he.Message.(string); ok {
			body.Error = msg
		} else {
			body.Error = http.StatusText(he.Code)
		}
	}
	var defErr *model.DefinitionError
	if errors.As(err, &defErr) {
		for _, p := range defErr.Problems {
			body.Problems = append(body.Problems, p.Error())
		}
	}
	if status >= http.StatusInternalServerError {
		ctxlog.FromContext(c.Request().Context()).Error("Request failed.", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, body)
	}
	if err != nil {
		ctxlog.FromContext(c.Request().Context()).Error("Failed to write error response.", "error", err)
	}
}
