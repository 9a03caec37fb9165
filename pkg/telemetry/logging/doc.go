// Package logging configures structured logging for Veridion Sentinel.
//
// Setup builds a log/slog logger from the telemetry configuration and
// installs it as the process default, so components can pick it up with
// slog.Default().With("component", ...). Context helpers carry the
// policy and agent identifiers of an evaluation through the call chain.
package logging
