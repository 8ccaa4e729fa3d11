// Package protocol implements the line protocol spoken between the
// supervisor and the presence worker.
//
// Every message is one UTF-8 line terminated by a single '\n'. Carriage
// returns and line feeds inside a status are replaced with spaces before
// sending, so one status always maps to exactly one line. There is no other
// escaping, no length prefix and no acknowledgement. End of input tells the
// worker to shut down.
package protocol

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Terminator ends every message on the wire.
const Terminator = '\n'

var lineBreaks = strings.NewReplacer("\r", " ", "\n", " ")

// Sanitize replaces every '\r' and '\n' in s with a single space.
func Sanitize(s string) string {
	return lineBreaks.Replace(s)
}

// Encode returns the wire form of status: the sanitized text followed by
// exactly one terminator.
func Encode(status string) []byte {
	clean := Sanitize(status)
	buf := make([]byte, 0, len(clean)+1)
	buf = append(buf, clean...)
	return append(buf, Terminator)
}

// Writer sends status lines to a worker's input stream.
// It is safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter returns a Writer that sends lines to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes status as one line using a single Write call, so concurrent
// senders never interleave within a line. Blocking and buffering are those
// of the underlying stream.
func (w *Writer) Send(status string) error {
	line := Encode(status)

	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.w.Write(line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return io.ErrShortWrite
	}
	return nil
}

// Reader decodes status lines from a worker's input stream.
// It is not safe for concurrent use.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader that decodes lines from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next line without its terminator. A trailing '\r' is
// dropped as well so CRLF senders decode cleanly. A final line that is not
// terminated is still returned; the following call reports io.EOF.
func (r *Reader) Next() (string, error) {
	line, err := r.r.ReadString(Terminator)
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSuffix(line, "\r"), nil
		}
		return "", err
	}
	line = line[:len(line)-1]
	return strings.TrimSuffix(line, "\r"), nil
}
