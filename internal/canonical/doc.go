// Package canonical turns loosely shaped extraction fragments into one
// canonical Record.
//
// Canonicalize folds alternate field names onto canonical ones, flattens
// grouped list shapes, treats blank values as absent, drops entries that fail
// plausibility checks (projects filed as certifications, publications hosted
// on code sites, entries missing their identity fields) and merges duplicates
// across fragments. Its output is a fixed point, so Normalize on a canonical
// record changes nothing. Validate checks a record against the embedded JSON
// schema.
package canonical
