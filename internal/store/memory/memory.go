// Package memory provides process-local implementations of the core storage
// ports. It backs STORE_DRIVER=memory and the service and handler tests.
package memory

import (
	"context"
	"errors"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/schoolbulk/internal/core"
)

// ErrAccountExists is returned when an email already has a login.
var ErrAccountExists = errors.New("account already exists")

type recordKey struct {
	school string
	module string
}

// Store keeps records, history and accounts in maps guarded by one mutex.
type Store struct {
	mu       sync.RWMutex
	records  map[recordKey][]core.Record
	history  []core.ImportHistoryEntry
	accounts map[string]core.AccountRequest
	now      func() time.Time
}

func New() *Store {
	return &Store{
		records:  make(map[recordKey][]core.Record),
		accounts: make(map[string]core.AccountRequest),
		now:      time.Now,
	}
}

func (s *Store) CreateRecord(ctx context.Context, schoolID, moduleID string, fields map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	rec := core.Record{
		ID:        uuid.NewString(),
		Module:    moduleID,
		Fields:    maps.Clone(fields),
		CreatedAt: s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey{schoolID, moduleID}
	s.records[key] = append(s.records[key], rec)
	return rec.ID, nil
}

// ListRecords returns copies in insertion order.
func (s *Store) ListRecords(ctx context.Context, schoolID, moduleID string) ([]core.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.records[recordKey{schoolID, moduleID}]
	out := make([]core.Record, len(stored))
	for i, rec := range stored {
		rec.Fields = maps.Clone(rec.Fields)
		out[i] = rec
	}
	return out, nil
}

func (s *Store) AppendHistory(ctx context.Context, entry *core.ImportHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, *entry)
	return nil
}

// ListHistory returns entries newest first.
func (s *Store) ListHistory(ctx context.Context, filter core.HistoryFilter) ([]core.ImportHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []core.ImportHistoryEntry
	for _, e := range s.history {
		if e.SchoolID != filter.SchoolID {
			continue
		}
		if filter.Module != "" && e.Module != filter.Module {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// CreateAccount registers a login keyed by lowercased email.
func (s *Store) CreateAccount(ctx context.Context, req core.AccountRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	email := strings.ToLower(req.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[email]; exists {
		return "", ErrAccountExists
	}
	s.accounts[email] = req
	return uuid.NewString(), nil
}

// AccountCount returns the number of logins created.
func (s *Store) AccountCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts)
}

var (
	_ core.RecordStore     = (*Store)(nil)
	_ core.HistoryStore    = (*Store)(nil)
	_ core.AccountProvider = (*Store)(nil)
)
