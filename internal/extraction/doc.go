// Package extraction runs the chunked-parallel extraction of a résumé.
//
// The document is split into a fixed plan of chunks (profile, experience,
// qualifications), each owning a disjoint set of record fields. Every chunk
// renders its prompt template and issues one generation call concurrently.
// A chunk that fails, panics, or returns an unusable response settles as
// Absent and its fields stay empty; the surviving fragments are merged by
// the canonical package in plan order. Extract itself fails only for empty
// input, cancellation, or when every issued chunk failed.
package extraction
