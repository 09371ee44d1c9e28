// Package pipeline normalizes per-stage records into uniform pipeline items.
//
// Items are derived, never authoritative: the Aggregator recomputes the whole
// list from a stage Snapshot on every change and nothing mutates an item in
// place. The set of families is fixed (maintenance and OSS), each with its own
// mapper, and the combined list is ordered so that items needing a human
// surface first.
package pipeline
