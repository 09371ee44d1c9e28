// Package dispatch wires the stage store, pipeline aggregator, review queue,
// and batch coordinators into one Session.
//
// Every command works through a Session. Stage fetchers call the GitHub
// client and the contribution service; any change to a stage recomputes the
// pipeline items and resyncs the review queue. Coordinator callbacks apply
// the optimistic local update after each successful action, so the next
// render reflects the action without waiting for a reload.
package dispatch
