// Package track persists per-file processing outcomes so interrupted
// anonymization runs can resume without redoing finished work.
package track

import (
	"crypto/md5"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is the recorded outcome for one input file.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry records one processed file.
type Entry struct {
	Status    Status `json:"status"`
	Hash      string `json:"hash"`
	Output    string `json:"output,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

type fileData struct {
	Files   map[string]*Entry `json:"files"`
	Updated string            `json:"updated"`
	Summary struct {
		Success int `json:"success"`
		Error   int `json:"error"`
		Total   int `json:"total"`
	} `json:"summary"`
}

// Tracker tracks processing progress for resumable runs. Safe for
// concurrent use.
type Tracker struct {
	mu        sync.Mutex
	stateFile string
	log       *zap.Logger
	processed map[string]*Entry
}

// New creates a tracker backed by stateFile, loading any previous state.
// An empty stateFile disables persistence.
func New(stateFile string, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{
		stateFile: stateFile,
		log:       log,
		processed: make(map[string]*Entry),
	}
	if stateFile != "" {
		t.load()
	}
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.stateFile)
	if err != nil {
		return // no previous run
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		t.log.Warn("could not load progress file", zap.String("file", t.stateFile), zap.Error(err))
		return
	}
	if fd.Files != nil {
		t.processed = fd.Files
	}
	t.log.Info("loaded previous run state",
		zap.Int("success", t.countStatus(StatusSuccess)),
		zap.Int("failed", t.countStatus(StatusError)))
}

func (t *Tracker) save() {
	if t.stateFile == "" {
		return
	}

	fd := fileData{Files: t.processed, Updated: time.Now().Format(time.RFC3339)}
	fd.Summary.Success = t.countStatus(StatusSuccess)
	fd.Summary.Error = t.countStatus(StatusError)
	fd.Summary.Total = len(t.processed)

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		t.log.Warn("could not marshal run state", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.stateFile), 0755); err != nil {
		t.log.Warn("could not create state directory", zap.Error(err))
		return
	}
	if err := os.WriteFile(t.stateFile, data, 0644); err != nil {
		t.log.Warn("could not save run state", zap.Error(err))
	}
}

func (t *Tracker) countStatus(s Status) int {
	n := 0
	for _, e := range t.processed {
		if e.Status == s {
			n++
		}
	}
	return n
}

// fileHash fingerprints a file by size and mtime, so edited inputs are
// reprocessed on the next run.
func fileHash(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%d_%d", info.Size(), info.ModTime().Unix())))
	return fmt.Sprintf("%x", sum[:4])
}

// IsProcessed reports whether path was already successfully processed and
// is unchanged since.
func (t *Tracker) IsProcessed(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.processed[path]
	if !ok || entry.Status != StatusSuccess {
		return false
	}
	return entry.Hash == fileHash(path)
}

// MarkSuccess records a successfully written output for path.
func (t *Tracker) MarkSuccess(path, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed[path] = &Entry{
		Status:    StatusSuccess,
		Hash:      fileHash(path),
		Output:    output,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	t.save()
}

// MarkError records a failure for path.
func (t *Tracker) MarkError(path, msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.processed[path] = &Entry{
		Status:    StatusError,
		Hash:      fileHash(path),
		Error:     msg,
		Timestamp: time.Now().Format(time.RFC3339),
	}
	t.save()
}

// ClearFailed drops all failed entries so they are retried, returning the
// number cleared.
func (t *Tracker) ClearFailed() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for key, entry := range t.processed {
		if entry.Status == StatusError {
			delete(t.processed, key)
			n++
		}
	}
	if n > 0 {
		t.save()
		t.log.Info("cleared failed entries for retry", zap.Int("count", n))
	}
	return n
}

// Counts returns the recorded success and error totals.
func (t *Tracker) Counts() (success, failed int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.countStatus(StatusSuccess), t.countStatus(StatusError)
}
