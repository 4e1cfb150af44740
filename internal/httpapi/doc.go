// Package httpapi exposes the programmatic API of an app.App over HTTP with
// echo. Bodies are JSON; model errors map onto status codes: missing
// resources 404, invalid definitions 422, disabled workflows 409.
package httpapi
