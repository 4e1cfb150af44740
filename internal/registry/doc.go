// Package registry provides the central "glue" for the node type system.
//
// The Registry maps the string identifiers stored in workflow definitions
// (e.g. "action-api") to a static Definition: display metadata, ordered input
// and output ports, default configuration and the compiled Behavior that runs
// the node.
//
// During application startup every built-in module registers its definitions
// through the Module interface. The registry is read-mostly afterwards and is
// shared by all concurrent runs.
package registry
