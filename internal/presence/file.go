package presence

import (
	"fmt"
	"maps"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/codestatus/internal/errors"
	"github.com/Iron-Ham/codestatus/internal/util"
)

// Document is the YAML form of the presence state written by FileProvider.
type Document struct {
	AppID     string            `yaml:"app_id"`
	Online    bool              `yaml:"online"`
	UpdatedAt time.Time         `yaml:"updated_at"`
	Fields    map[string]string `yaml:"fields"`
}

// ReadDocument loads a document written by FileProvider.
func ReadDocument(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("failed to parse presence document: %w", err)
	}
	return doc, nil
}

// FileProvider mirrors the presence state into a YAML document at Path.
// The document is rewritten atomically after every mutation, so a reader
// polling the file sees the cleared state between cycles just as a remote
// presence service would.
type FileProvider struct {
	path string
	now  func() time.Time

	mu  sync.Mutex
	doc Document
}

// NewFileProvider returns a provider writing to path. Nothing is written
// until Init.
func NewFileProvider(path string) *FileProvider {
	return &FileProvider{path: path, now: time.Now}
}

// Path returns the document location.
func (f *FileProvider) Path() string {
	return f.path
}

// Init writes an empty, online document. It fails when the document cannot
// be written, which makes the worker exit.
func (f *FileProvider) Init(appID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.path == "" {
		return errors.NewValidationError("state file path is empty").WithField("state")
	}
	f.doc = Document{
		AppID:  appID,
		Online: true,
		Fields: map[string]string{},
	}
	if err := f.flush(); err != nil {
		f.doc = Document{}
		return err
	}
	return nil
}

// RunCallbacks is a no-op; a file has nothing to call back.
func (f *FileProvider) RunCallbacks() {}

// Publish sets or removes key and rewrites the document.
func (f *FileProvider) Publish(key string, v Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.doc.Online {
		return errors.ErrProviderClosed
	}

	prev := maps.Clone(f.doc.Fields)
	if s, ok := v.Get(); ok {
		f.doc.Fields[key] = s
	} else {
		delete(f.doc.Fields, key)
	}
	if err := f.flush(); err != nil {
		f.doc.Fields = prev
		return err
	}
	return nil
}

// ClearAll removes every key and rewrites the document.
func (f *FileProvider) ClearAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.doc.Online {
		return errors.ErrProviderClosed
	}

	prev := f.doc.Fields
	f.doc.Fields = map[string]string{}
	if err := f.flush(); err != nil {
		f.doc.Fields = prev
		return err
	}
	return nil
}

// Shutdown marks the document offline. The last published fields are left
// in place for readers that want to show a stale status.
func (f *FileProvider) Shutdown() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.doc.Online {
		return nil
	}
	f.doc.Online = false
	return f.flush()
}

// flush must be called with mu held.
func (f *FileProvider) flush() error {
	f.doc.UpdatedAt = f.now().UTC()
	data, err := yaml.Marshal(&f.doc)
	if err != nil {
		return fmt.Errorf("failed to encode presence document: %w", err)
	}
	return util.WriteFileAtomic(f.path, data, 0644)
}
