package parser

import (
	"path/filepath"
	"strings"
)

// Language represents a programming language
type Language string

const (
	LanguagePython     Language = "python"
	LanguageGo         Language = "go"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJava       Language = "java"
	LanguageUnknown    Language = "unknown"
)

// Supported reports whether files in this language can be analyzed
func (l Language) Supported() bool {
	return l == LanguagePython
}

// Options bounds the work a single parse may do. Zero values disable a limit.
type Options struct {
	MaxSourceBytes int
	MaxDepth       int
}

// DefaultOptions returns the limits used by the API server
func DefaultOptions() Options {
	return Options{
		MaxSourceBytes: 1 << 20,
		MaxDepth:       1000,
	}
}

// DetectLanguage detects language from file extension
func DetectLanguage(path string) Language {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".py", ".pyw":
		return LanguagePython
	case ".go":
		return LanguageGo
	case ".js", ".jsx", ".mjs":
		return LanguageJavaScript
	case ".ts", ".tsx":
		return LanguageTypeScript
	case ".java":
		return LanguageJava
	default:
		return LanguageUnknown
	}
}
