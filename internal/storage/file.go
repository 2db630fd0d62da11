package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "standupbot/pkg/logx"
)

// fileStore appends one JSON object per line to <prefix>.journal.jsonl.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	f       *os.File
	threads map[string]bool
}

type fileEntry struct {
	Kind   string        `json:"kind"` // "update" | "thread"
	Update *UpdateRecord `json:"update,omitempty"`
	Thread *ThreadRecord `json:"thread,omitempty"`
}

const (
	kindUpdate = "update"
	kindThread = "thread"
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	jpath := filepath.Join(dir, base+".journal.jsonl")

	s := &fileStore{log: log, path: jpath, threads: map[string]bool{}}
	snap, err := s.read("")
	if err != nil {
		return nil, err
	}
	for _, t := range snap.Threads {
		s.threads[t.DateKey] = true
	}

	f, err := os.OpenFile(jpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	s.f = f
	if err := s.terminate(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// terminate ends a torn trailing line so the next record starts clean.
func (s *fileStore) terminate() error {
	st, err := s.f.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	r, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer r.Close()
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = s.f.Write([]byte{'\n'})
	return err
}

func (s *fileStore) write(e fileEntry) error {
	if s.f == nil {
		return ErrClosed
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.f.Write(append(b, '\n'))
	return err
}

func (s *fileStore) AppendUpdate(ctx context.Context, r UpdateRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(fileEntry{Kind: kindUpdate, Update: &r})
}

func (s *fileStore) PutThread(ctx context.Context, r ThreadRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.threads[r.DateKey] {
		return nil
	}
	if err := s.write(fileEntry{Kind: kindThread, Thread: &r}); err != nil {
		return err
	}
	s.threads[r.DateKey] = true
	return nil
}

func (s *fileStore) Load(ctx context.Context, since string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(since)
}

// read replays the journal. Undecodable lines (a torn final write) are
// skipped with a warning.
func (s *fileStore) read(since string) (Snapshot, error) {
	var snap Snapshot
	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, err
	}
	defer f.Close()

	seen := map[string]bool{}
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var e fileEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			s.log.Warn("journal line skipped", logx.String("path", s.path), logx.Int("line", line), logx.Err(err))
			continue
		}
		switch {
		case e.Kind == kindUpdate && e.Update != nil:
			if e.Update.DateKey >= since {
				snap.Updates = append(snap.Updates, *e.Update)
			}
		case e.Kind == kindThread && e.Thread != nil:
			if e.Thread.DateKey >= since && !seen[e.Thread.DateKey] {
				seen[e.Thread.DateKey] = true
				snap.Threads = append(snap.Threads, *e.Thread)
			}
		}
	}
	return snap, sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
