// Package logging assembles structured slog loggers and the progress sink used
// across VibeDispatch.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes component loggers with standardized field keys. The
// Sink type is the bounded, append-only list of user-facing progress entries
// (info, success, warning, error) that batch runs and stage loads narrate into;
// NewSinkHandler plus TeeLogger route slog warnings into the same panel.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits data with the same shape.
package logging
