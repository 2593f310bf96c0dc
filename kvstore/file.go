package kvstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
)

// StateFile is the name of the file backing FileStore.
const StateFile = "state.json"

// FileStore keeps all keys in a single JSON document. Writes use
// write-temp-fsync-rename under an flock so a crash never leaves a torn
// file and concurrent processes do not interleave.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dataDir}, nil
}

func (s *FileStore) path() string {
	return filepath.Join(s.dir, StateFile)
}

// A dedicated lock file is used because the data file is replaced via
// rename, which changes its inode.
func (s *FileStore) lockPath() string {
	return s.path() + ".lock"
}

func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc map[string]json.RawMessage
	err := s.withFlock(syscall.LOCK_SH, func() error {
		var err error
		doc, err = s.readDoc()
		return err
	})
	if err != nil {
		return nil, false, err
	}
	v, ok := doc[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (s *FileStore) Put(entries map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withFlock(syscall.LOCK_EX, func() error {
		doc, err := s.readDoc()
		if err != nil {
			// Unreadable state is replaced wholesale.
			doc = make(map[string]json.RawMessage)
		}
		for k, v := range entries {
			if !json.Valid(v) {
				return fmt.Errorf("value for %q is not valid JSON", k)
			}
			doc[k] = json.RawMessage(cloneBytes(v))
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		return s.writeAtomic(data)
	})
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) withFlock(how int, fn func() error) error {
	lockF, err := os.OpenFile(s.lockPath(), os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockF.Close()

	if err := syscall.Flock(int(lockF.Fd()), how); err != nil {
		return fmt.Errorf("flock: %w", err)
	}
	defer syscall.Flock(int(lockF.Fd()), syscall.LOCK_UN)

	return fn()
}

func (s *FileStore) readDoc() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, err
	}
	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", StateFile, err)
	}
	return doc, nil
}

func (s *FileStore) writeAtomic(data []byte) error {
	path := s.path()
	tmpPath := path + ".tmp"

	tmpF, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmpF.Write(data); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpF.Sync(); err != nil {
		tmpF.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmpF.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to state: %w", err)
	}
	return nil
}
