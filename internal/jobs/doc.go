// Package jobs persists background jobs and exposes the narrow, atomic
// updates that drive their lifecycle.
//
// The Store manages the database connection (SQLite by default, PostgreSQL
// when configured), schema initialization, claiming, progress, terminal
// transitions, heartbeats, and reclamation of abandoned work. Every mutation
// is a single conditional statement on the job's current status and bumps
// the version column, so completed, failed, and cancelled jobs are never
// modified again and a job is claimed by exactly one worker.
//
// Payload and result are opaque JSON documents; the store never inspects
// them. Jobs are never deleted.
//
// Schema changes bump schemaVersion in schema.go; users clear the database to
// adopt the new schema.
package jobs
