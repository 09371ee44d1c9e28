// Package recon is the HTTP client for the contribution aggregator and the
// heuristic scorer used when the aggregator is unavailable.
//
// The aggregator keys repositories by hyphenated owner-repo slugs while the
// rest of VibeDispatch uses owner/repo; Claim and Unclaim convert at the
// boundary.
package recon
