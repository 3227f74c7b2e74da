// Package prompts holds the named, versioned extraction templates.
//
// The built-in catalog is embedded YAML. Templates carry one placeholder,
// {{document}}, which Render replaces with the document text. A directory of
// YAML files with the same shape may replace built-in templates by name or
// add new ones.
package prompts
