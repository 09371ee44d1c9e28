// Package github wraps the gh CLI for both VibeDispatch pipelines.
//
// Every call goes through a shared rate limiter and an optional TTL response
// cache backed by the ledger. Per-repository listings fan out over a bounded
// goroutine pool; a repository that fails is logged and omitted rather than
// failing the whole stage. Mutations invalidate the cached responses of the
// repository they touch.
package github
