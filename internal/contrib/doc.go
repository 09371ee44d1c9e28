// Package contrib runs the open-source contribution flow on top of the gh
// client, the recon aggregator, and the ledger.
//
// Upstream repositories are watched, their issues scored (by the aggregator
// or the local fallback heuristic), and a chosen issue is handed to the agent
// through a context issue on the principal's fork. The resulting fork pull
// request is reviewed and merged on the fork, then submitted upstream and
// polled until it is merged or closed. Aggregator writes and notifications
// are best effort: their failures are logged and never fail the flow.
package contrib
