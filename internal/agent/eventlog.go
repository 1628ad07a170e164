package agent

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ownagent/ownagent/pkg/models"
)

// EventLogHeader is the first line of an event log: metadata identifying
// the run the events belong to.
type EventLogHeader struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
}

// EventRecord is one logged runtime event. Content is the event payload as
// it was emitted, kept raw so readers can decode per event type.
type EventRecord struct {
	TS      time.Time             `json:"ts"`
	Type    models.AgentEventType `json:"type"`
	Content json.RawMessage       `json:"content"`
}

// EventLog writes runtime events to a JSONL sink, one object per line,
// header first. Every line is flushed immediately so a crash loses at most
// the event being written. Writes are best effort: a broken sink never
// interrupts the agent loop.
type EventLog struct {
	mu      sync.Mutex
	writer  io.Writer
	file    *os.File // non-nil when the log owns the file
	header  EventLogHeader
	started bool
}

// NewEventLog creates a log writing to w. An empty runID gets a generated
// one.
func NewEventLog(w io.Writer, runID string) *EventLog {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &EventLog{
		writer: w,
		header: EventLogHeader{Version: 1, RunID: runID, StartedAt: time.Now().UTC()},
	}
}

// NewEventLogFile creates a log writing to path, truncating any previous
// file. The caller closes it when the run ends.
func NewEventLogFile(path, runID string) (*EventLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create event log: %w", err)
	}
	l := NewEventLog(f, runID)
	l.file = f
	return l, nil
}

// RunID returns the identifier written in the header.
func (l *EventLog) RunID() string {
	return l.header.RunID
}

// Record appends one event. The header is written lazily before the first
// event so an unused log leaves no file content behind.
func (l *EventLog) Record(ev models.AgentEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		l.started = true
		l.writeLine(l.header)
	}

	content, err := json.Marshal(ev.Content)
	if err != nil {
		return
	}
	l.writeLine(EventRecord{TS: time.Now().UTC(), Type: ev.Type, Content: content})
}

func (l *EventLog) writeLine(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = l.writer.Write(data)
	_, _ = l.writer.Write([]byte("\n"))
	if l.file != nil {
		_ = l.file.Sync()
	}
}

// Close closes the underlying file if the log owns one.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// EventLogReader replays a JSONL event log.
type EventLogReader struct {
	dec    *json.Decoder
	header EventLogHeader
}

// NewEventLogReader reads and validates the header line of r.
func NewEventLogReader(r io.Reader) (*EventLogReader, error) {
	dec := json.NewDecoder(r)
	var header EventLogHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("read event log header: %w", err)
	}
	if header.Version != 1 {
		return nil, fmt.Errorf("unsupported event log version: %d", header.Version)
	}
	return &EventLogReader{dec: dec, header: header}, nil
}

// Header returns the run metadata.
func (r *EventLogReader) Header() EventLogHeader {
	return r.header
}

// Next returns the next event record, or io.EOF at the end of the log.
func (r *EventLogReader) Next() (EventRecord, error) {
	var rec EventRecord
	if err := r.dec.Decode(&rec); err != nil {
		return EventRecord{}, err
	}
	return rec, nil
}
