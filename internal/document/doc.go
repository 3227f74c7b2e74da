// Package document converts uploaded documents into text for extraction.
package document
