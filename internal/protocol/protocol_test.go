package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "editing main.go", "editing main.go\n"},
		{"empty", "", "\n"},
		{"embedded newline", "a\nb", "a b\n"},
		{"embedded crlf", "a\r\nb", "a  b\n"},
		{"many breaks", "\n\n\r", "   \n"},
		{"trailing newline", "done\n", "done \n"},
		{"unicode", "正在编写 Button.tsx", "正在编写 Button.tsx\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(Encode(tt.in))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 1, strings.Count(got, "\n"), "exactly one terminator")
			assert.NotContains(t, got, "\r")
		})
	}
}

func TestWriter_SendOneLinePerStatus(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Send("first\nsecond"))
	require.NoError(t, w.Send("third"))

	assert.Equal(t, "first second\nthird\n", buf.String())
}

type chunkRecorder struct {
	mu     sync.Mutex
	chunks []string
}

func (c *chunkRecorder) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chunks = append(c.chunks, string(p))
	return len(p), nil
}

func TestWriter_SendIsSingleWrite(t *testing.T) {
	rec := &chunkRecorder{}
	w := NewWriter(rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Send("line\r\nwith breaks")
		}()
	}
	wg.Wait()

	require.Len(t, rec.chunks, 20)
	for _, chunk := range rec.chunks {
		assert.Equal(t, "line  with breaks\n", chunk)
	}
}

type failingWriter struct{ err error }

func (f failingWriter) Write([]byte) (int, error) { return 0, f.err }

type shortWriter struct{}

func (shortWriter) Write(p []byte) (int, error) { return len(p) - 1, nil }

func TestWriter_SendErrors(t *testing.T) {
	closed := errors.New("write |1: file already closed")
	err := NewWriter(failingWriter{err: closed}).Send("x")
	assert.ErrorIs(t, err, closed)

	err = NewWriter(shortWriter{}).Send("x")
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestReader_Next(t *testing.T) {
	r := NewReader(strings.NewReader("one\ntwo\r\n\nlast"))

	var lines []string
	for {
		line, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		lines = append(lines, line)
	}

	assert.Equal(t, []string{"one", "two", "", "last"}, lines)
}

func TestReader_EmptyInput(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).Next()
	assert.Equal(t, io.EOF, err)
}

func TestRoundTrip(t *testing.T) {
	pr, pw := io.Pipe()
	w := NewWriter(pw)
	r := NewReader(pr)

	go func() {
		_ = w.Send("MyApp | 正在编写 components/Button.tsx")
		_ = w.Send("multi\nline")
		_ = pw.Close()
	}()

	line, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "MyApp | 正在编写 components/Button.tsx", line)

	line, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, "multi line", line)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}
