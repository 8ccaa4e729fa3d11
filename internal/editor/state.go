// Package editor models what the user is editing and turns editor activity
// into State updates.
//
// A State is a snapshot: the active document (if any) and the workspace it
// belongs to. Sources deliver Events carrying states, focus changes and
// manual override requests; the app loop feeds them to the supervisor.
package editor

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Iron-Ham/codestatus/internal/template"
)

// Placeholder names available to status templates.
const (
	VarFileName    = "fileName"
	VarProjectName = "projectName"
	VarLanguage    = "language"
	VarLineCount   = "lineCount"
	VarFolderName  = "folderName"
	VarFilePath    = "filePath"
)

// Variables returns every placeholder name a State fills.
func Variables() []string {
	return []string{VarFileName, VarProjectName, VarLanguage, VarLineCount, VarFolderName, VarFilePath}
}

// Document is the file shown in the active editor.
type Document struct {
	// Path is the absolute path of the file.
	Path      string `json:"path"`
	Language  string `json:"language,omitempty"`
	LineCount int    `json:"lineCount,omitempty"`
}

// State is the editor state at one moment. A nil Document means no editor
// is active.
type State struct {
	Document *Document `json:"document,omitempty"`
	// Workspace is the root directory of the open workspace, if any.
	Workspace string `json:"workspace,omitempty"`
	// WorkspaceName overrides the base name of Workspace as projectName.
	WorkspaceName string `json:"workspaceName,omitempty"`
}

// Active reports whether an editor is open.
func (s State) Active() bool {
	return s.Document != nil && s.Document.Path != ""
}

// ProjectName is the workspace name, or "" without a workspace.
func (s State) ProjectName() string {
	if s.WorkspaceName != "" {
		return s.WorkspaceName
	}
	if s.Workspace == "" {
		return ""
	}
	return filepath.Base(filepath.Clean(s.Workspace))
}

// RelativePath returns the document path relative to the workspace, using
// forward slashes. Files outside the workspace keep their full path.
func (s State) RelativePath() string {
	if !s.Active() {
		return ""
	}
	p := s.Document.Path
	if s.Workspace == "" {
		return filepath.ToSlash(p)
	}
	rel, err := filepath.Rel(s.Workspace, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// Context builds the render context for the status template. It returns
// nil when no editor is active.
func (s State) Context() template.Context {
	if !s.Active() {
		return nil
	}
	doc := s.Document

	ctx := template.Context{
		VarFileName:    filepath.Base(doc.Path),
		VarProjectName: s.ProjectName(),
		VarLanguage:    doc.Language,
		VarFolderName:  filepath.Base(filepath.Dir(doc.Path)),
		VarFilePath:    s.RelativePath(),
	}
	if doc.LineCount > 0 {
		ctx[VarLineCount] = strconv.Itoa(doc.LineCount)
	}
	return ctx
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s.Document != nil {
		d := *s.Document
		s.Document = &d
	}
	return s
}
