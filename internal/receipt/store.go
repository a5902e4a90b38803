package receipt

import (
	"strconv"
	"sync"
	"time"
)

// Issued is a confirmed draft as handed to the persistence boundary.
type Issued struct {
	No       string    `json:"receipt_no"`
	Draft    Draft     `json:"draft"`
	IssuedAt time.Time `json:"issued_at"`
}

// Store keeps issued receipts in memory, newest first.
type Store struct {
	mu     sync.RWMutex
	prefix string
	issued []Issued
}

func NewStore(numberPrefix string) *Store {
	if numberPrefix == "" {
		numberPrefix = "RC"
	}
	return &Store{prefix: numberPrefix}
}

// Issue assigns a receipt number and records the draft. The stored copy
// is detached from the caller's draft.
func (s *Store) Issue(d Draft) Issued {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	rec := Issued{
		No:       s.prefix + strconv.FormatInt(now.UnixMilli(), 10),
		Draft:    d.Clone(),
		IssuedAt: now,
	}
	s.issued = append([]Issued{rec}, s.issued...)
	return rec
}

func (s *Store) List() []Issued {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Issued, len(s.issued))
	copy(out, s.issued)
	return out
}

func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.issued)
}
