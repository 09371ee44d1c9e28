// Package stagestore tracks the per-stage datasets that feed the dispatch
// pipelines.
//
// Each Slot owns the items, loading flag, error text, and last fetch time of a
// single named stage. Loads fail softly: a failed fetch records an error and
// keeps whatever items were already present. Remove, Patch, and Replace are
// the only local mutators and run synchronously so successful remote actions
// can update the view without waiting for a refetch.
//
// Store.Subscribe is the single change feed; the dispatch session uses it to
// recompute pipeline items and resync the review queue.
package stagestore
