// Package workflow runs background jobs through registered handlers.
//
// The Manager keeps a fixed pool of workers per work type. Each worker polls
// the job store, claims one runnable job at a time, and runs its handler
// inside a failure boundary: panics become errors, progress is advisory, and
// a heartbeat is refreshed while the handler runs. Outcomes are settled with
// the retry classifier: success completes the job, retryable failures with
// attempts remaining move it to retrying with an exponential delay, and
// everything else fails it and fires the final-failure hook.
//
// A reclaimer loop returns processing jobs whose heartbeat expired to
// retrying, so a crashed worker never leaves a job stuck. Jobs cancelled
// while running finish their work; the store discards the late result.
//
// The extraction handler lives here too: it turns a job payload into
// document text, runs the chunk orchestrator, and stores the canonical
// record with run metadata as the job result.
package workflow
