package editor

import (
	"path/filepath"
	"strings"
)

// languageIDs maps file extensions to editor language identifiers.
var languageIDs = map[string]string{
	".go":    "go",
	".mod":   "go.mod",
	".ts":    "typescript",
	".tsx":   "typescriptreact",
	".js":    "javascript",
	".jsx":   "javascriptreact",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".json":  "json",
	".py":    "python",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".java":  "java",
	".kt":    "kotlin",
	".swift": "swift",
	".rb":    "ruby",
	".php":   "php",
	".lua":   "lua",
	".sh":    "shellscript",
	".bash":  "shellscript",
	".zsh":   "shellscript",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".md":    "markdown",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".sql":   "sql",
	".proto": "proto3",
	".vue":   "vue",
	".txt":   "plaintext",
}

var languageNames = map[string]string{
	"Makefile":   "makefile",
	"Dockerfile": "dockerfile",
}

// LanguageFor guesses the language id of path. Unknown files are
// "plaintext".
func LanguageFor(path string) string {
	base := filepath.Base(path)
	if id, ok := languageNames[base]; ok {
		return id
	}
	if id, ok := languageIDs[strings.ToLower(filepath.Ext(base))]; ok {
		return id
	}
	return "plaintext"
}
