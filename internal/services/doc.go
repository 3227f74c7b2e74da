// Package services defines shared utilities consumed by job handlers and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, work types, chunk names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that tag failures with a
//     stable kind (configuration, invalid_response, service, timeout,
//     validation) for retry classification and job error descriptors.
//
// Use these helpers when wiring new handler logic so operational behaviour
// (error handling, observability, retries) stays uniform across the service.
package services
