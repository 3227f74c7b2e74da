// Package daemon coordinates the long-running vitae process.
//
// It wires configuration, the job store, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances
// sharing one data directory. On start it returns jobs left processing by a
// previous run to the retry path before workers begin claiming.
//
// Keep orchestration logic here: extraction itself lives in the workflow and
// extraction packages while the daemon focuses on startup, shutdown, and
// high level diagnostics.
package daemon
