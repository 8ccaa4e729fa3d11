package logging

import (
	"bytes"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleLog = `{"time":"2026-01-02T10:00:01Z","level":"INFO","msg":"worker started","component":"supervisor","worker_id":"w1","pid":4242}
{"time":"2026-01-02T10:00:03Z","level":"WARN","msg":"send failed","component":"supervisor","worker_id":"w1"}
not json at all
{"time":"2026-01-02T10:00:02Z","level":"DEBUG","msg":"status rendered","component":"supervisor","mode":"Auto"}

{"time":"2026-01-02T10:00:04Z","level":"ERROR","msg":"worker exited","component":"supervisor","worker_id":"w1","exit_code":1}
`

func writeSampleLog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, LogFileName), []byte(sampleLog), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestAggregateLogs(t *testing.T) {
	t.Run("parses and sorts entries", func(t *testing.T) {
		entries, err := AggregateLogs(writeSampleLog(t))
		if err != nil {
			t.Fatalf("AggregateLogs failed: %v", err)
		}
		if len(entries) != 4 {
			t.Fatalf("expected 4 entries, got %d", len(entries))
		}

		wantOrder := []string{"worker started", "status rendered", "send failed", "worker exited"}
		for i, msg := range wantOrder {
			if entries[i].Message != msg {
				t.Errorf("entries[%d].Message = %q, want %q", i, entries[i].Message, msg)
			}
		}
		if entries[0].WorkerID != "w1" || entries[0].Component != "supervisor" {
			t.Errorf("context fields not extracted: %+v", entries[0])
		}
		if entries[0].Attrs["pid"] != float64(4242) {
			t.Errorf("pid attr = %v", entries[0].Attrs["pid"])
		}
		if _, ok := entries[0].Attrs["msg"]; ok {
			t.Error("standard fields must not appear in attrs")
		}
	})

	t.Run("includes compressed backups", func(t *testing.T) {
		dir := writeSampleLog(t)

		f, err := os.Create(filepath.Join(dir, LogFileName+".1.gz"))
		if err != nil {
			t.Fatal(err)
		}
		zw := gzip.NewWriter(f)
		_, _ = zw.Write([]byte(`{"time":"2026-01-01T09:00:00Z","level":"INFO","msg":"older"}` + "\n"))
		_ = zw.Close()
		_ = f.Close()

		entries, err := AggregateLogs(dir)
		if err != nil {
			t.Fatalf("AggregateLogs failed: %v", err)
		}
		if len(entries) != 5 || entries[0].Message != "older" {
			t.Errorf("expected backup entry first, got %d entries starting with %q", len(entries), entries[0].Message)
		}
	})

	t.Run("missing log file", func(t *testing.T) {
		if _, err := AggregateLogs(t.TempDir()); err == nil {
			t.Error("expected error for missing log file")
		}
	})
}

func TestFilterLogs(t *testing.T) {
	entries, err := AggregateLogs(writeSampleLog(t))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter LogFilter
		want   int
	}{
		{"empty filter", LogFilter{}, 4},
		{"level warn", LogFilter{Level: "warn"}, 2},
		{"level error", LogFilter{Level: LevelError}, 1},
		{"worker", LogFilter{WorkerID: "w1"}, 3},
		{"component", LogFilter{Component: "supervisor"}, 4},
		{"message", LogFilter{MessageContains: "worker"}, 2},
		{"start time", LogFilter{StartTime: time.Date(2026, 1, 2, 10, 0, 3, 0, time.UTC)}, 2},
		{"end time", LogFilter{EndTime: time.Date(2026, 1, 2, 10, 0, 1, 0, time.UTC)}, 1},
		{"combined", LogFilter{Level: LevelWarn, MessageContains: "send"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FilterLogs(entries, tt.filter); len(got) != tt.want {
				t.Errorf("FilterLogs() returned %d entries, want %d", len(got), tt.want)
			}
		})
	}
}

func TestWriteLogEntries(t *testing.T) {
	entries, err := AggregateLogs(writeSampleLog(t))
	if err != nil {
		t.Fatal(err)
	}

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteLogEntries(&buf, entries, "json"); err != nil {
			t.Fatal(err)
		}
		var decoded []LogEntry
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if len(decoded) != len(entries) {
			t.Errorf("decoded %d entries, want %d", len(decoded), len(entries))
		}
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteLogEntries(&buf, entries, "TEXT"); err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 4 {
			t.Fatalf("expected 4 lines, got %d", len(lines))
		}
		if !strings.Contains(lines[0], "(component=supervisor, worker=w1)") {
			t.Errorf("missing context in %q", lines[0])
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		if err := WriteLogEntries(&buf, entries, "csv"); err != nil {
			t.Fatal(err)
		}
		records, err := csv.NewReader(&buf).ReadAll()
		if err != nil {
			t.Fatalf("invalid CSV: %v", err)
		}
		if len(records) != 5 || records[0][0] != "timestamp" {
			t.Errorf("unexpected CSV records: %v", records)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if err := WriteLogEntries(&bytes.Buffer{}, entries, "xml"); err == nil {
			t.Error("expected error for unsupported format")
		}
	})
}

func TestExportLogEntries(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.json")
	entries := []LogEntry{{Level: LevelInfo, Message: "x"}}

	if err := ExportLogEntries(entries, out, "json"); err != nil {
		t.Fatalf("ExportLogEntries failed: %v", err)
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestParseLogEntry(t *testing.T) {
	if _, err := parseLogEntry("{broken"); err == nil {
		t.Error("expected error for invalid JSON")
	}

	entry, err := parseLogEntry(`{"time":"bad","level":"INFO","msg":"m","extra":true}`)
	if err != nil {
		t.Fatal(err)
	}
	if !entry.Timestamp.IsZero() {
		t.Error("unparseable time should leave zero timestamp")
	}
	if entry.Attrs["extra"] != true {
		t.Errorf("extra attr = %v", entry.Attrs["extra"])
	}
}
