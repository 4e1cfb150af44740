// Package app wires the workflow store, node registry, run tracker and
// capabilities into one App and exposes the programmatic graph-construction
// API on it. The CLI and the HTTP server are thin layers over App.
package app
