package convlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONLLog stores one record per line. A process-wide mutex keeps
// concurrent appenders from interleaving a record; cross-process
// concurrency is out of scope.
type JSONLLog struct {
	mu   sync.Mutex
	path string
	cap  int
}

// OpenJSONL opens (or creates on first append) a JSONL log at path.
// cap <= 0 uses DefaultCap.
func OpenJSONL(path string, cap int) *JSONLLog {
	if cap <= 0 {
		cap = DefaultCap
	}
	return &JSONLLog{path: path, cap: cap}
}

// Append writes one record and compacts from the head when the cap is
// exceeded.
func (l *JSONLLog) Append(r Record) error {
	r.Stamp()

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return err
	}
	records = append(records, r)
	if len(records) > l.cap {
		records = records[len(records)-l.cap:]
	}
	return l.writeAll(records)
}

// Load returns records in insertion order.
func (l *JSONLLog) Load(limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

// Count returns the total number of stored records.
func (l *JSONLLog) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func (l *JSONLLog) Close() error { return nil }

func (l *JSONLLog) readAll() ([]Record, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open conversation log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			// A torn tail line from a crashed process is dropped rather
			// than poisoning every read.
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read conversation log: %w", err)
	}
	return records, nil
}

func (l *JSONLLog) writeAll(records []Record) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o700); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	tmp := l.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("write conversation log: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, r := range records {
		line, err := json.Marshal(r)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("marshal record: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush conversation log: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close conversation log: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace conversation log: %w", err)
	}
	return nil
}
