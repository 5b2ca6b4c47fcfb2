// Package store owns the authoritative in-memory collections of accounts
// and memos together with their file-backed persistence. All exported
// operations are safe for concurrent use: each collection is guarded by a
// readers-writer lock, so list and fetch calls from many connection
// handlers proceed together while mutations (and the flush they trigger)
// are exclusive.
package store

import (
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrDuplicateID is returned when registering an account id that
	// already exists.
	ErrDuplicateID = errors.New("id already exists")

	// ErrNotFound covers every "no such record" outcome, including a memo
	// that exists but belongs to a different owner and an account whose
	// secret did not match. Callers must not be able to distinguish the
	// cases.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidField is returned by SearchMemos for an unknown search field.
	ErrInvalidField = errors.New("invalid search field")
)

// Search fields accepted by SearchMemos.
const (
	SearchTitle = "title"
	SearchBody  = "body"
	SearchAll   = "all"
)

// Store holds both collections. Lock ordering: accounts before memos,
// always, for operations that touch both.
type Store struct {
	dir string

	accMu    sync.RWMutex
	accounts map[string]*Account
	accOrder []string

	memoMu    sync.RWMutex
	memos     map[int]*Memo
	memoOrder []int
	nextID    int

	now func() time.Time
}

// New creates an empty store persisting under dir. Call LoadAll before
// serving requests.
func New(dir string) *Store {
	return &Store{
		dir:      dir,
		accounts: make(map[string]*Account),
		memos:    make(map[int]*Memo),
		nextID:   1,
		now: func() time.Time {
			return time.Now().Truncate(time.Second)
		},
	}
}

// CreateAccount registers a new account. Fails with ErrDuplicateID if the
// id is taken. The account file is flushed before returning.
func (s *Store) CreateAccount(id, secret string) error {
	s.accMu.Lock()
	defer s.accMu.Unlock()

	if _, ok := s.accounts[id]; ok {
		return ErrDuplicateID
	}
	s.accounts[id] = &Account{ID: id, Secret: secret}
	s.accOrder = append(s.accOrder, id)
	if err := s.saveAccountsLocked(); err != nil {
		// A failed flush must leave memory matching disk, or a retry
		// would see a duplicate id that was never persisted.
		delete(s.accounts, id)
		s.accOrder = s.accOrder[:len(s.accOrder)-1]
		return err
	}
	return nil
}

// Authenticate reports whether the account exists and the secret matches
// exactly.
func (s *Store) Authenticate(id, secret string) bool {
	s.accMu.RLock()
	defer s.accMu.RUnlock()

	acc, ok := s.accounts[id]
	return ok && acc.Secret == secret
}

// ChangeSecret replaces the account secret after verifying the current one.
func (s *Store) ChangeSecret(id, oldSecret, newSecret string) error {
	s.accMu.Lock()
	defer s.accMu.Unlock()

	acc, ok := s.accounts[id]
	if !ok || acc.Secret != oldSecret {
		return ErrNotFound
	}
	acc.Secret = newSecret
	if err := s.saveAccountsLocked(); err != nil {
		acc.Secret = oldSecret
		return err
	}
	return nil
}

// DeleteAccount removes the account and every memo it owns, including the
// owner's persisted memo file.
func (s *Store) DeleteAccount(id, secret string) error {
	s.accMu.Lock()
	defer s.accMu.Unlock()

	acc, ok := s.accounts[id]
	if !ok || acc.Secret != secret {
		return ErrNotFound
	}
	delete(s.accounts, id)
	for i, aid := range s.accOrder {
		if aid == id {
			s.accOrder = append(s.accOrder[:i], s.accOrder[i+1:]...)
			break
		}
	}

	s.memoMu.Lock()
	kept := s.memoOrder[:0]
	for _, mid := range s.memoOrder {
		if s.memos[mid].OwnerID == id {
			delete(s.memos, mid)
			continue
		}
		kept = append(kept, mid)
	}
	s.memoOrder = kept
	s.memoMu.Unlock()

	if err := s.removeOwnerFile(id); err != nil {
		return err
	}
	return s.saveAccountsLocked()
}

// AddMemo creates a memo for the owner and returns its id. Ids are global,
// monotonically assigned and never handed out twice, even after deletes.
func (s *Store) AddMemo(ownerID, title, body string) (int, error) {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	now := s.now()
	m := &Memo{
		ID:        s.nextID,
		OwnerID:   ownerID,
		Title:     title,
		Body:      body,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.nextID++
	s.memos[m.ID] = m
	s.memoOrder = append(s.memoOrder, m.ID)

	if err := s.saveOwnerLocked(ownerID); err != nil {
		// Drop the unpersisted memo; the id stays burned so it is never
		// handed out twice.
		delete(s.memos, m.ID)
		s.memoOrder = s.memoOrder[:len(s.memoOrder)-1]
		return 0, err
	}
	return m.ID, nil
}

// GetMemo returns a copy of the memo. A memo that exists under a different
// owner is reported as ErrNotFound, same as one that does not exist.
func (s *Store) GetMemo(ownerID string, id int) (Memo, error) {
	s.memoMu.RLock()
	defer s.memoMu.RUnlock()

	m, ok := s.memos[id]
	if !ok || m.OwnerID != ownerID {
		return Memo{}, ErrNotFound
	}
	return *m, nil
}

// UpdateMemo replaces the body and bumps updated_at. Title and created_at
// are immutable.
func (s *Store) UpdateMemo(ownerID string, id int, newBody string) error {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	m, ok := s.memos[id]
	if !ok || m.OwnerID != ownerID {
		return ErrNotFound
	}
	oldBody, oldUpdated := m.Body, m.UpdatedAt
	m.Body = newBody
	m.UpdatedAt = s.now()
	if err := s.saveOwnerLocked(ownerID); err != nil {
		m.Body, m.UpdatedAt = oldBody, oldUpdated
		return err
	}
	return nil
}

// DeleteMemo removes a single memo.
func (s *Store) DeleteMemo(ownerID string, id int) error {
	s.memoMu.Lock()
	defer s.memoMu.Unlock()

	m, ok := s.memos[id]
	if !ok || m.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.memos, id)
	pos := -1
	for i, mid := range s.memoOrder {
		if mid == id {
			pos = i
			s.memoOrder = append(s.memoOrder[:i], s.memoOrder[i+1:]...)
			break
		}
	}
	if err := s.saveOwnerLocked(ownerID); err != nil {
		s.memos[id] = m
		if pos >= 0 {
			s.memoOrder = append(s.memoOrder[:pos], append([]int{id}, s.memoOrder[pos:]...)...)
		}
		return err
	}
	return nil
}

// ListMemos returns summaries of the owner's memos in insertion order.
func (s *Store) ListMemos(ownerID string) []MemoSummary {
	s.memoMu.RLock()
	defer s.memoMu.RUnlock()

	var out []MemoSummary
	for _, mid := range s.memoOrder {
		if m := s.memos[mid]; m.OwnerID == ownerID {
			out = append(out, m.summary())
		}
	}
	return out
}

// ListMemosByMonth returns the owner's memos whose created_at falls in the
// given calendar year and month.
func (s *Store) ListMemosByMonth(ownerID string, year, month int) []MemoSummary {
	s.memoMu.RLock()
	defer s.memoMu.RUnlock()

	var out []MemoSummary
	for _, mid := range s.memoOrder {
		m := s.memos[mid]
		if m.OwnerID != ownerID {
			continue
		}
		if m.CreatedAt.Year() == year && int(m.CreatedAt.Month()) == month {
			out = append(out, m.summary())
		}
	}
	return out
}

// SearchMemos returns the owner's memos whose title, body, or either
// contains the keyword, case-insensitively.
//
// The fold is byte-wise and only lowers ASCII letters; multi-byte text is
// matched verbatim. Correct Unicode case-folding for non-ASCII scripts is
// deliberately not provided.
func (s *Store) SearchMemos(ownerID, field, keyword string) ([]MemoSummary, error) {
	var inTitle, inBody bool
	switch field {
	case SearchTitle:
		inTitle = true
	case SearchBody:
		inBody = true
	case SearchAll:
		inTitle, inBody = true, true
	default:
		return nil, ErrInvalidField
	}

	s.memoMu.RLock()
	defer s.memoMu.RUnlock()

	needle := asciiLower(keyword)
	var out []MemoSummary
	for _, mid := range s.memoOrder {
		m := s.memos[mid]
		if m.OwnerID != ownerID {
			continue
		}
		if inTitle && strings.Contains(asciiLower(m.Title), needle) {
			out = append(out, m.summary())
			continue
		}
		if inBody && strings.Contains(asciiLower(m.Body), needle) {
			out = append(out, m.summary())
		}
	}
	return out, nil
}

// SnapshotForExport returns copies of the owner's full memo records in
// insertion order, for the export renderers.
func (s *Store) SnapshotForExport(ownerID string) []Memo {
	s.memoMu.RLock()
	defer s.memoMu.RUnlock()

	var out []Memo
	for _, mid := range s.memoOrder {
		if m := s.memos[mid]; m.OwnerID == ownerID {
			out = append(out, *m)
		}
	}
	return out
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
