// Package interpret recovers structured values from free-form generator
// output.
//
// Generators wrap JSON in code fences, surround it with prose, double-escape
// control sequences, or return the whole payload as a quoted string. Parse
// peels those layers in a fixed order and takes the first complete object.
// Anything else fails with *InvalidResponseError, which matches
// services.ErrInvalidResponse and keeps only a bounded preview of the text.
package interpret
