// Package reviewtui is the interactive review queue: one item at a time,
// with the pull request diff loaded lazily for the focused item and single
// keystroke approve and merge actions.
package reviewtui
