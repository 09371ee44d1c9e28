// Package review keeps the focus state of the interactive review queue.
//
// The Navigator holds the needs-review items, the index of the focused item,
// and the lazily fetched detail payload of that item. Batch callbacks and
// store subscriptions call RemoveCurrent and Sync while a TUI drives
// navigation, so every method takes the navigator lock.
package review
