package kvstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func openAll(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"memory": NewMemoryStore()}

	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	stores["file"] = fs

	ss, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	stores["sqlite"] = ss

	t.Cleanup(func() {
		for _, s := range stores {
			s.Close()
		}
	})
	return stores
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			v, found, err := s.Get("chatSessions")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if found || v != nil {
				t.Errorf("expected not found, got %q", v)
			}
		})
	}
}

func TestStore_PutGet(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			err := s.Put(map[string][]byte{
				"chatSessions":     []byte(`{"Default":[]}`),
				"activeSessionIds": []byte(`{"Default":null}`),
			})
			if err != nil {
				t.Fatalf("Put: %v", err)
			}

			v, found, err := s.Get("chatSessions")
			if err != nil || !found {
				t.Fatalf("Get: found=%v err=%v", found, err)
			}
			if string(v) != `{"Default":[]}` {
				t.Errorf("chatSessions = %s", v)
			}

			if err := s.Put(map[string][]byte{"chatSessions": []byte(`{}`)}); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			v, _, _ = s.Get("chatSessions")
			if string(v) != `{}` {
				t.Errorf("after overwrite = %s", v)
			}
			v, _, _ = s.Get("activeSessionIds")
			if string(v) != `{"Default":null}` {
				t.Errorf("untouched key changed: %s", v)
			}
		})
	}
}

func TestStore_ConcurrentPuts(t *testing.T) {
	for name, s := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := s.Put(map[string][]byte{"k": []byte(`1`)}); err != nil {
						t.Errorf("Put: %v", err)
					}
				}()
			}
			wg.Wait()

			v, found, err := s.Get("k")
			if err != nil || !found || string(v) != "1" {
				t.Errorf("Get = %s, %v, %v", v, found, err)
			}
		})
	}
}

func TestFileStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(map[string][]byte{"a": []byte(`"x"`)}); err != nil {
		t.Fatal(err)
	}

	s2, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	v, found, err := s2.Get("a")
	if err != nil || !found || string(v) != `"x"` {
		t.Errorf("Get = %s, %v, %v", v, found, err)
	}

	if _, err := os.Stat(filepath.Join(dir, StateFile+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestFileStore_RejectsInvalidJSON(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Put(map[string][]byte{"a": []byte(`{`)}); err == nil {
		t.Fatal("expected error for invalid JSON value")
	}
}

func TestFileStore_CorruptFileIsReplaced(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, StateFile), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := s.Get("a"); err == nil {
		t.Error("expected decode error on corrupt file")
	}
	if err := s.Put(map[string][]byte{"a": []byte(`1`)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, found, err := s.Get("a")
	if err != nil || !found || string(v) != "1" {
		t.Errorf("Get = %s, %v, %v", v, found, err)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s1.Put(map[string][]byte{"a": []byte(`[1,2]`)}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	v, found, err := s2.Get("a")
	if err != nil || !found || string(v) != `[1,2]` {
		t.Errorf("Get = %s, %v, %v", v, found, err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		backend Backend
		wantErr bool
	}{
		{"", false},
		{BackendFile, false},
		{BackendSQLite, false},
		{BackendMemory, false},
		{"redis", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			s, err := Open(tt.backend, t.TempDir())
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownBackend) {
					t.Errorf("err = %v, want ErrUnknownBackend", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			s.Close()
		})
	}
}
