package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"quorum/internal/task"
)

const (
	contextsDir = "contexts"
	logsDir     = "logs"

	activeSetFile    = "active.json"
	completedSetFile = "completed.json"
)

// FileStore is the durable Store implementation. Layout under the data
// directory:
//
//	contexts/<taskID>.json   context record (snapshot, atomic rename)
//	logs/<taskID>.jsonl      append-only message log
//	active.json              active task id set
//	completed.json           completed task id set
//	store.lock               cross-process lock
//
// Writes are serialized via a mutex within the process and flock(2) across
// processes.
type FileStore struct {
	dataDir string
	mu      sync.Mutex
}

// NewFileStore creates a FileStore rooted at the given data directory.
// The directory structure is created lazily on first write.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{dataDir: dataDir}
}

// SaveContext writes the context record atomically: data is written to a
// temporary file first, then renamed into place. The message log is stored
// separately and stripped from the record.
func (s *FileStore) SaveContext(ctx *task.Context) error {
	if ctx == nil || ctx.ID == "" {
		return fmt.Errorf("persist: context with id is required")
	}

	record := *ctx
	record.Messages = nil

	data, err := json.MarshalIndent(&record, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal context: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	dir := filepath.Join(s.dataDir, contextsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: create contexts directory: %w", err)
	}

	return atomicWrite(filepath.Join(dir, ctx.ID+".json"), data)
}

// LoadContext reads a context record by task id, or (nil, nil) if absent.
// The message log is loaded separately via LoadMessages.
func (s *FileStore) LoadContext(taskID string) (*task.Context, error) {
	if taskID == "" {
		return nil, fmt.Errorf("persist: taskID is required")
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, contextsDir, taskID+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: read context: %w", err)
	}

	var ctx task.Context
	if err := json.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("persist: unmarshal context: %w", err)
	}
	return &ctx, nil
}

// AppendMessage appends one message to the task's JSONL log. Each line is
// small enough that O_APPEND provides atomicity on POSIX systems.
func (s *FileStore) AppendMessage(taskID string, msg task.Message) error {
	if taskID == "" {
		return fmt.Errorf("persist: taskID is required")
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("persist: marshal message: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dataDir, logsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("persist: create logs directory: %w", err)
	}

	f, err := os.OpenFile(s.logPath(taskID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("persist: open log for append: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("persist: append to log: %w", err)
	}

	return f.Close()
}

// LoadMessages reads the full ordered message log for a task, or (nil, nil)
// if no log exists. Malformed lines are skipped rather than failing the read.
func (s *FileStore) LoadMessages(taskID string) ([]task.Message, error) {
	if taskID == "" {
		return nil, fmt.Errorf("persist: taskID is required")
	}

	f, err := os.Open(s.logPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: open log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var messages []task.Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg task.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("persist: scan log: %w", err)
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp.Before(messages[j].Timestamp)
	})
	return messages, nil
}

// RewriteMessages replaces the task's message log wholesale via an atomic
// rename. Only used to flip the acked flag on a logged message.
func (s *FileStore) RewriteMessages(taskID string, msgs []task.Message) error {
	if taskID == "" {
		return fmt.Errorf("persist: taskID is required")
	}

	var sb strings.Builder
	for _, msg := range msgs {
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("persist: marshal message: %w", err)
		}
		sb.Write(data)
		sb.WriteByte('\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	if err := os.MkdirAll(filepath.Join(s.dataDir, logsDir), 0o755); err != nil {
		return fmt.Errorf("persist: create logs directory: %w", err)
	}
	return atomicWrite(s.logPath(taskID), []byte(sb.String()))
}

// MarkActive adds the task id to the active set and removes it from the
// completed set.
func (s *FileStore) MarkActive(taskID string) error {
	return s.moveBetweenSets(taskID, activeSetFile, completedSetFile)
}

// MarkCompleted adds the task id to the completed set and removes it from
// the active set.
func (s *FileStore) MarkCompleted(taskID string) error {
	return s.moveBetweenSets(taskID, completedSetFile, activeSetFile)
}

// ActiveIDs returns the active task id set.
func (s *FileStore) ActiveIDs() ([]string, error) {
	return s.readSet(activeSetFile)
}

// CompletedIDs returns the completed task id set.
func (s *FileStore) CompletedIDs() ([]string, error) {
	return s.readSet(completedSetFile)
}

// moveBetweenSets adds taskID to the set in addFile and removes it from the
// set in removeFile, holding the store lock across both writes.
func (s *FileStore) moveBetweenSets(taskID, addFile, removeFile string) error {
	if taskID == "" {
		return fmt.Errorf("persist: taskID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fl, err := s.lock()
	if err != nil {
		return err
	}
	defer func() { _ = fl.Unlock() }()

	add, err := s.readSetLocked(addFile)
	if err != nil {
		return err
	}
	remove, err := s.readSetLocked(removeFile)
	if err != nil {
		return err
	}

	if !contains(add, taskID) {
		add = append(add, taskID)
		sort.Strings(add)
	}
	remove = without(remove, taskID)

	if err := s.writeSetLocked(addFile, add); err != nil {
		return err
	}
	return s.writeSetLocked(removeFile, remove)
}

func (s *FileStore) readSet(name string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readSetLocked(name)
}

func (s *FileStore) readSetLocked(name string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(s.dataDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("persist: read %s: %w", name, err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("persist: unmarshal %s: %w", name, err)
	}
	return ids, nil
}

func (s *FileStore) writeSetLocked(name string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return fmt.Errorf("persist: marshal %s: %w", name, err)
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("persist: create data directory: %w", err)
	}
	return atomicWrite(filepath.Join(s.dataDir, name), data)
}

// lock acquires the cross-process store lock, creating the data directory
// if needed.
func (s *FileStore) lock() (*FileLock, error) {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create data directory: %w", err)
	}
	fl := NewFileLock(s.dataDir)
	if err := fl.Lock(); err != nil {
		return nil, fmt.Errorf("persist: acquire lock: %w", err)
	}
	return fl, nil
}

func (s *FileStore) logPath(taskID string) string {
	return filepath.Join(s.dataDir, logsDir, taskID+".jsonl")
}

// atomicWrite writes data to a temporary file and renames it into place.
func atomicWrite(target string, data []byte) error {
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("persist: write temp file: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("persist: rename temp file: %w", err)
	}
	return nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func without(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
