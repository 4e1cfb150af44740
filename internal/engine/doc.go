// Package engine drives a single run of a workflow.
//
// Execution is a depth-first walk directed by output ports. Starting at the
// trigger node, every node is invoked once per arrival, its result is logged
// and cached, and the connections leaving the selected output port are
// followed one after another: a branch is finished before its next sibling
// starts. Two node flows are special-cased on top of that rule: loop nodes
// fire "iteration" N times (setting _loopIndex) and then "complete" once, and
// merge nodes configured with waitForAll hold back dispatch until every
// connected input has been reached.
//
// A behavior returning success false is routed like any other result. Only a
// returned error or a panic aborts the run.
package engine
