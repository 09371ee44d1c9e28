// Package ledger persists the local bookkeeping of the OSS contribution
// pipeline in SQLite.
//
// The Store holds the watchlist, selected issues, fork assignments, branches
// ready to submit upstream, and submitted pull requests, alongside a TTL
// response cache for gh reads and a dedup table for outbound notifications.
// Pipeline stage state itself is never written here; the ledger only records
// the side effects of remote actions that gh cannot answer on its own.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package ledger
