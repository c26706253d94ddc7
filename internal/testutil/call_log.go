package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// CallRecord is one recorded gateway call.
type CallRecord struct {
	Method    string
	Args      []string
	Timestamp time.Time
	Error     error
}

// Recorder collects gateway calls and tracks how many run at once. It is safe
// for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	records     []CallRecord
	inFlight    int
	maxInFlight int
}

// begin marks a call as started and returns the function that ends it.
func (r *Recorder) begin(method string, args ...string) func(err error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.mu.Unlock()

	started := time.Now()
	return func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.inFlight--
		r.records = append(r.records, CallRecord{
			Method:    method,
			Args:      append([]string(nil), args...),
			Timestamp: started,
			Error:     err,
		})
	}
}

// Calls returns a copy of the recorded calls in completion order.
func (r *Recorder) Calls() []CallRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]CallRecord(nil), r.records...)
}

// Count returns how many calls of method completed.
func (r *Recorder) Count(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Method == method {
			n++
		}
	}
	return n
}

// MaxInFlight returns the highest number of concurrent calls observed.
func (r *Recorder) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

// CallLogEntry represents a single call record in YAML format.
type CallLogEntry struct {
	Method    string   `yaml:"method"`
	Args      []string `yaml:"args,omitempty"`
	Timestamp string   `yaml:"timestamp"`
	Error     string   `yaml:"error,omitempty"`
}

// CallLog wraps []CallLogEntry for YAML serialization.
type CallLog struct {
	Entries []CallLogEntry `yaml:"entries"`
}

// CallLogDirEnv names the directory DumpCallsOnFailure writes to.
const CallLogDirEnv = "DEPLOYLOG_CALL_LOG_DIR"

// DumpCallsOnFailure registers a cleanup that writes the calls r saw to
// $DEPLOYLOG_CALL_LOG_DIR/<test>-<name>.yaml when t fails. Nothing is written
// when the variable is unset.
func DumpCallsOnFailure(t testing.TB, name string, r *Recorder) {
	t.Helper()
	dir := os.Getenv(CallLogDirEnv)
	if dir == "" {
		return
	}
	t.Cleanup(func() {
		if !t.Failed() {
			return
		}
		file := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "-" + name + ".yaml"
		path := filepath.Join(dir, file)
		if err := WriteCallLog(path, r.Calls()); err != nil {
			t.Logf("dumping %s calls: %v", name, err)
			return
		}
		t.Logf("%s calls written to %s", name, path)
	})
}

// WriteCallLog writes a slice of CallRecords to a YAML file.
func WriteCallLog(path string, records []CallRecord) error {
	log := CallLog{
		Entries: make([]CallLogEntry, 0, len(records)),
	}
	for _, r := range records {
		entry := CallLogEntry{
			Method:    r.Method,
			Args:      r.Args,
			Timestamp: r.Timestamp.Format(time.RFC3339Nano),
		}
		if r.Error != nil {
			entry.Error = r.Error.Error()
		}
		log.Entries = append(log.Entries, entry)
	}

	data, err := yaml.Marshal(log)
	if err != nil {
		return fmt.Errorf("marshaling call log to YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing call log to %s: %w", path, err)
	}
	return nil
}

// ReadCallLog reads a YAML call log file.
func ReadCallLog(path string) (*CallLog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading call log from %s: %w", path, err)
	}

	var log CallLog
	if err := yaml.Unmarshal(data, &log); err != nil {
		return nil, fmt.Errorf("unmarshaling call log YAML: %w", err)
	}
	return &log, nil
}

// HasError returns true if the entry has a non-empty error string.
func (e CallLogEntry) HasError() bool {
	return e.Error != ""
}
