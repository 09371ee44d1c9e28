// Package notifications posts contribution pipeline events to a Discord
// webhook as rich embeds.
//
// NewService returns a noop notifier when no webhook is configured. Delivery
// failures are returned to the caller, which logs them and carries on; a
// missed notification never fails a batch.
package notifications
