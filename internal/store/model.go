package store

import "time"

// TimeLayout is the fixed timestamp format used on the wire and in the
// persisted files. Second precision, local time.
const TimeLayout = "2006-01-02 15:04:05"

// Account is a registered user identity. The ID is unique and immutable
// after registration; only the secret may change.
type Account struct {
	ID     string
	Secret string
}

// Memo is a titled, timestamped note owned by exactly one account.
type Memo struct {
	ID        int
	OwnerID   string
	Title     string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MemoSummary is the lightweight representation returned by list operations.
type MemoSummary struct {
	ID        int
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Memo) summary() MemoSummary {
	return MemoSummary{ID: m.ID, Title: m.Title, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}
