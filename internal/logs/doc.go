// Package logs reads back the vibedispatch log file: the last N lines, lines
// appended after an offset, and a follow loop for `vibedispatch logs -f`.
// Lines can be filtered by level for both the console and JSON formats.
package logs
