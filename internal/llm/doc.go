// Package llm defines the text-generation boundary used by extraction.
//
// Generator is the single provider interface; concrete clients live in the
// openai and gemini subpackages and are selected by name through the
// providers package. WithRetry layers the call-level retry loop and a
// bounded per-call wait over any Generator.
package llm
