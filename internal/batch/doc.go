// Package batch drives one remote action over a user-selected subset of
// items.
//
// A Coordinator owns its selection set. ProcessSelected works through the
// selected candidates sequentially so log order stays deterministic and the
// remote side never sees parallel mutations from one run. Each failure is
// logged and leaves the item selected for a retry; each success deselects the
// item and hands it to OnSuccess for the optimistic local update. Errors,
// unsuccessful results, and panics from the action all arrive on the same
// failure path.
package batch
