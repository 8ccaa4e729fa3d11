package editor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/logging"
	"github.com/Iron-Ham/codestatus/internal/protocol"
)

// Kind identifies what an Event reports.
type Kind string

const (
	// KindActiveEditor carries the new active document.
	KindActiveEditor Kind = "activeEditor"
	// KindNoEditor reports that the last editor was closed.
	KindNoEditor Kind = "noEditor"
	// KindFocus reports a window focus change.
	KindFocus Kind = "focus"
	// KindManual sets or clears the manual override.
	KindManual Kind = "manual"
)

// Event is one editor notification.
type Event struct {
	Kind Kind `json:"type"`

	// State is set for KindActiveEditor and KindNoEditor.
	State State `json:"-"`
	// Focused is set for KindFocus.
	Focused bool `json:"-"`
	// Text is set for KindManual. Whitespace-only text clears the override.
	Text string `json:"-"`
}

// Source produces editor events until ctx is done or the source is
// exhausted. Run closes nothing; the caller owns out.
type Source interface {
	Run(ctx context.Context, out chan<- Event) error
}

// wireEvent is the JSON form accepted by JSONSource.
type wireEvent struct {
	Type          Kind      `json:"type"`
	Document      *Document `json:"document,omitempty"`
	Workspace     string    `json:"workspace,omitempty"`
	WorkspaceName string    `json:"workspaceName,omitempty"`
	Focused       *bool     `json:"focused,omitempty"`
	Text          *string   `json:"text,omitempty"`
}

// DecodeEvent parses one JSON line.
//
//	{"type":"activeEditor","workspace":"/w/app","document":{"path":"/w/app/src/main.go","language":"go","lineCount":120}}
//	{"type":"noEditor","workspace":"/w/app"}
//	{"type":"focus","focused":false}
//	{"type":"manual","text":"in a meeting"}
func DecodeEvent(line string) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal([]byte(line), &w); err != nil {
		return Event{}, fmt.Errorf("decode editor event: %w", err)
	}

	ev := Event{Kind: w.Type}
	switch w.Type {
	case KindActiveEditor:
		if w.Document == nil || w.Document.Path == "" {
			return Event{}, errors.NewValidationError("activeEditor event without document path").WithField("document")
		}
		ev.State = State{Document: w.Document, Workspace: w.Workspace, WorkspaceName: w.WorkspaceName}
	case KindNoEditor:
		ev.State = State{Workspace: w.Workspace, WorkspaceName: w.WorkspaceName}
	case KindFocus:
		if w.Focused == nil {
			return Event{}, errors.NewValidationError("focus event without focused flag").WithField("focused")
		}
		ev.Focused = *w.Focused
	case KindManual:
		if w.Text != nil {
			ev.Text = *w.Text
		}
	default:
		return Event{}, errors.NewValidationError("unknown editor event type").WithField("type").WithValue(string(w.Type))
	}
	return ev, nil
}

// JSONSource reads one JSON event per line, the way an editor plugin
// would report activity over a pipe. Malformed lines are logged and
// skipped.
type JSONSource struct {
	r      io.Reader
	logger *logging.Logger
}

// NewJSONSource reads events from r.
func NewJSONSource(r io.Reader, logger *logging.Logger) *JSONSource {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &JSONSource{r: r, logger: logger.WithComponent("editor-events")}
}

// Run decodes events until EOF, which ends the source with a nil error.
func (s *JSONSource) Run(ctx context.Context, out chan<- Event) error {
	rd := protocol.NewReader(s.r)
	for {
		line, err := rd.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read editor events: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		ev, err := DecodeEvent(line)
		if err != nil {
			s.logger.Warn("skipping malformed editor event", "error", err.Error())
			continue
		}

		select {
		case out <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
