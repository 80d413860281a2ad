package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "vrcinvited/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.invites.jsonl       (append-only JSON Lines)
//   - <prefix>.dedup.snapshot.json (periodic snapshot)
//   - <prefix>.dedup.journal.jsonl (append-only journal)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	inviteFile *os.File

	dedupSnapshotPath string
	dedupJournalPath  string
	dedupJournalFile  *os.File
	dedup             map[string]int64 // unix milli

	dedupWrites int
}

// compactEvery bounds journal growth between snapshot rewrites.
const compactEvery = 128

type dedupRecord struct {
	Key   string `json:"key"`
	Until int64  `json:"until"`
}

type inviteLine struct {
	At          time.Time `json:"at"`
	GroupID     string    `json:"group_id"`
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name,omitempty"`
	Outcome     string    `json:"outcome"`
	Detail      string    `json:"detail,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	invitePath := prefix + ".invites.jsonl"
	snapPath := prefix + ".dedup.snapshot.json"
	journalPath := prefix + ".dedup.journal.jsonl"

	inf, err := os.OpenFile(invitePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load dedup from snapshot + journal.
	dedup := map[string]int64{}
	_ = loadDedupSnapshot(snapPath, dedup)
	_ = replayDedupJournal(journalPath, dedup)
	pruneExpiredDedup(dedup)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = inf.Close()
		return nil, err
	}

	return &fileStore{
		log:               log,
		inviteFile:        inf,
		dedupSnapshotPath: snapPath,
		dedupJournalPath:  journalPath,
		dedupJournalFile:  jf,
		dedup:             dedup,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.inviteFile != nil {
		err1 = s.inviteFile.Close()
		s.inviteFile = nil
	}
	if s.dedupJournalFile != nil {
		err2 = s.dedupJournalFile.Close()
		s.dedupJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendInvite(ctx context.Context, rec InviteRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inviteFile == nil {
		return errors.New("invite journal closed")
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	enc := json.NewEncoder(s.inviteFile)
	return enc.Encode(inviteLine{
		At:          rec.At,
		GroupID:     rec.GroupID,
		UserID:      rec.UserID,
		DisplayName: rec.DisplayName,
		Outcome:     rec.Outcome,
		Detail:      rec.Detail,
	})
}

func (s *fileStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_ = ctx
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupJournalFile == nil {
		return errors.New("dedup journal closed")
	}

	ms := until.UnixMilli()
	s.dedup[key] = ms
	enc := json.NewEncoder(s.dedupJournalFile)
	if err := enc.Encode(dedupRecord{Key: key, Until: ms}); err != nil {
		return err
	}

	s.dedupWrites++
	if s.dedupWrites%compactEvery == 0 {
		pruneExpiredDedup(s.dedup)
		if err := s.compactLocked(); err != nil {
			s.log.Warn("dedup compaction failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.dedup[key]
	if !ok {
		return time.Time{}, false, nil
	}
	until := time.UnixMilli(ms)
	if time.Now().After(until) {
		delete(s.dedup, key)
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// compactLocked rewrites the snapshot from the in-memory map and truncates
// the journal. Caller holds s.mu.
func (s *fileStore) compactLocked() error {
	tmp := s.dedupSnapshotPath + ".tmp"
	b, err := json.Marshal(s.dedup)
	if err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.dedupSnapshotPath); err != nil {
		return err
	}

	if s.dedupJournalFile != nil {
		_ = s.dedupJournalFile.Close()
	}
	jf, err := os.OpenFile(s.dedupJournalPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		s.dedupJournalFile = nil
		return err
	}
	s.dedupJournalFile = jf
	return nil
}

func loadDedupSnapshot(path string, into map[string]int64) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, &into)
}

func replayDedupJournal(path string, into map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec dedupRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue // tolerate torn writes at the tail
		}
		into[rec.Key] = rec.Until
	}
	return sc.Err()
}

func pruneExpiredDedup(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, until := range m {
		if until <= now {
			delete(m, k)
		}
	}
}
