package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"memoserv/pkg/logger"
)

const (
	accountsFileName = "users.txt"
	memoFileSuffix   = "_memos.txt"
)

func (s *Store) accountsFile() string {
	return filepath.Join(s.dir, accountsFileName)
}

func (s *Store) ownerFile(ownerID string) string {
	// Owner ids are validated as alphanumeric before they reach the store,
	// but never trust a path component.
	return filepath.Join(s.dir, filepath.Base(ownerID)+memoFileSuffix)
}

// writeFileAtomic writes data to a uniquely named temp file in the same
// directory and renames it over path, so readers never observe a partial
// write and concurrent flushes never share a temp file.
func writeFileAtomic(path string, data []byte) error {
	dir, base := filepath.Split(path)
	tmp, err := os.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// saveAccountsLocked serializes the account collection. Caller holds accMu.
func (s *Store) saveAccountsLocked() error {
	var buf bytes.Buffer
	for _, id := range s.accOrder {
		acc := s.accounts[id]
		fmt.Fprintf(&buf, "%s:%s\n", acc.ID, acc.Secret)
	}
	return writeFileAtomic(s.accountsFile(), buf.Bytes())
}

// saveOwnerLocked serializes one owner's memos. Caller holds memoMu.
func (s *Store) saveOwnerLocked(ownerID string) error {
	var buf bytes.Buffer
	for _, mid := range s.memoOrder {
		m := s.memos[mid]
		if m.OwnerID != ownerID {
			continue
		}
		fmt.Fprintf(&buf, "%d\t%s\t%s\t%s\t%s\n",
			m.ID,
			m.CreatedAt.Format(TimeLayout),
			m.UpdatedAt.Format(TimeLayout),
			m.Title,
			m.Body)
	}
	return writeFileAtomic(s.ownerFile(ownerID), buf.Bytes())
}

func (s *Store) removeOwnerFile(ownerID string) error {
	err := os.Remove(s.ownerFile(ownerID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll reconstructs both collections from the data directory. A missing
// directory or file means an empty collection; corrupt lines are skipped
// with a warning, never fatal.
func (s *Store) LoadAll() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	s.accMu.Lock()
	s.memoMu.Lock()
	defer s.memoMu.Unlock()
	defer s.accMu.Unlock()

	s.accounts = make(map[string]*Account)
	s.accOrder = nil
	s.memos = make(map[int]*Memo)
	s.memoOrder = nil
	s.nextID = 1

	s.loadAccountsLocked()
	s.loadMemosLocked()
	return nil
}

func (s *Store) loadAccountsLocked() {
	data, err := os.ReadFile(s.accountsFile())
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Sugar.Warnf("could not read account file: %v", err)
		}
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		id, secret, ok := strings.Cut(line, ":")
		if !ok || id == "" || secret == "" {
			logger.Sugar.Warnf("skipping malformed account line %q", line)
			continue
		}
		if _, dup := s.accounts[id]; dup {
			continue
		}
		s.accounts[id] = &Account{ID: id, Secret: secret}
		s.accOrder = append(s.accOrder, id)
	}
}

func (s *Store) loadMemosLocked() {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*"+memoFileSuffix))
	if err != nil {
		logger.Sugar.Warnf("could not scan memo files: %v", err)
		return
	}
	for _, path := range paths {
		ownerID := strings.TrimSuffix(filepath.Base(path), memoFileSuffix)
		s.loadOwnerLocked(path, ownerID)
	}
	// Memo ids are assigned monotonically, so sorting by id restores the
	// global insertion order across owner files.
	sort.Ints(s.memoOrder)
	for _, mid := range s.memoOrder {
		if mid >= s.nextID {
			s.nextID = mid + 1
		}
	}
}

func (s *Store) loadOwnerLocked(path, ownerID string) {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Sugar.Warnf("could not read memo file %s: %v", path, err)
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		m, err := parseMemoLine(line, ownerID)
		if err != nil {
			logger.Sugar.Warnf("skipping malformed memo line in %s: %v", path, err)
			continue
		}
		if _, dup := s.memos[m.ID]; dup {
			continue
		}
		s.memos[m.ID] = m
		s.memoOrder = append(s.memoOrder, m.ID)
	}
}

func parseMemoLine(line, ownerID string) (*Memo, error) {
	parts := strings.SplitN(line, "\t", 5)
	if len(parts) != 5 {
		return nil, fmt.Errorf("want 5 fields, got %d", len(parts))
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("bad id %q", parts[0])
	}
	created, err := time.ParseInLocation(TimeLayout, parts[1], time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad created_at %q", parts[1])
	}
	updated, err := time.ParseInLocation(TimeLayout, parts[2], time.Local)
	if err != nil {
		return nil, fmt.Errorf("bad updated_at %q", parts[2])
	}
	return &Memo{
		ID:        id,
		OwnerID:   ownerID,
		Title:     parts[3],
		Body:      parts[4],
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// FlushAll serializes the current state of both collections. It is a full
// overwrite and may be called at any time; shutdown calls it once.
func (s *Store) FlushAll() error {
	s.accMu.RLock()
	s.memoMu.RLock()
	defer s.memoMu.RUnlock()
	defer s.accMu.RUnlock()

	if err := s.saveAccountsLocked(); err != nil {
		return err
	}
	owners := make(map[string]bool)
	for _, mid := range s.memoOrder {
		owners[s.memos[mid].OwnerID] = true
	}
	for owner := range owners {
		if err := s.saveOwnerLocked(owner); err != nil {
			return err
		}
	}
	return nil
}
