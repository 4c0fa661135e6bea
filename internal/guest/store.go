package guest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"backlog/internal/games"
)

const localIDPrefix = "local-"

var (
	errMissingStorePath = errors.New("guest: store path is required")

	// ErrEntryNotFound indicates the identifier does not name a stored entry.
	ErrEntryNotFound = errors.New("guest: entry not found")
)

// StoreConfig describes the guest store dependencies.
type StoreConfig struct {
	Path   string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Store persists the guest collection as one JSON-encoded ordered list in
// a single named slot on disk. Every mutation is a whole-collection
// read-modify-write; the last writer wins.
type Store struct {
	path   string
	clock  func() time.Time
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore constructs the guest store.
func NewStore(cfg StoreConfig) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errMissingStorePath
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, clock: clock, logger: logger}, nil
}

// Load reads the slot. A missing slot yields an empty collection; a slot
// that is not valid JSON is treated the same, since nothing in it can be
// recovered.
func (s *Store) Load(ctx context.Context) ([]StoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

// Save overwrites the slot with the provided collection.
func (s *Store) Save(ctx context.Context, entries []StoredEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(ctx, entries)
}

// Clear removes the slot. Clearing an absent slot is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("guest: clear slot: %w", err)
	}
	return nil
}

// List returns the stored collection in slot order (newest first).
func (s *Store) List(ctx context.Context) ([]StoredEntry, error) {
	return s.Load(ctx)
}

// Count returns the collection size.
func (s *Store) Count(ctx context.Context) (int, error) {
	entries, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Add prepends a new entry with a client-generated timestamp-derived
// identifier and a client-assigned creation time.
func (s *Store) Add(ctx context.Context, entry StoredEntry) (StoredEntry, error) {
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return StoredEntry{}, fmt.Errorf("%w: empty", games.ErrInvalidName)
	}

	now := s.clock().UTC()
	stored := StoredEntry{
		ID:        localIDPrefix + strconv.FormatInt(now.UnixNano(), 10),
		Name:      name,
		Platform:  games.NormalizePlatform(entry.Platform),
		Image:     entry.Image,
		Status:    string(games.ParseStatus(entry.Status)),
		CreatedAt: now.Format(time.RFC3339),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.load(ctx)
	if err != nil {
		return StoredEntry{}, err
	}
	entries = append([]StoredEntry{stored}, entries...)
	if err := s.save(ctx, entries); err != nil {
		return StoredEntry{}, err
	}
	return stored, nil
}

// Update applies a partial field edit to the identified entry.
func (s *Store) Update(ctx context.Context, id string, edits games.FieldEdits) (StoredEntry, error) {
	return s.mutate(ctx, id, func(entry *StoredEntry) error {
		if edits.Name != nil {
			name := strings.TrimSpace(*edits.Name)
			if name == "" {
				return fmt.Errorf("%w: empty", games.ErrInvalidName)
			}
			entry.Name = name
		}
		if edits.Platform != nil {
			entry.Platform = games.NormalizePlatform(*edits.Platform)
		}
		if edits.ImageURL != nil {
			entry.Image = *edits.ImageURL
		}
		if edits.Status != nil {
			entry.Status = string(games.ParseStatus(string(*edits.Status)))
		}
		return nil
	})
}

// AdvanceStatus moves the identified entry to the next status in the cycle.
func (s *Store) AdvanceStatus(ctx context.Context, id string) (StoredEntry, error) {
	return s.mutate(ctx, id, func(entry *StoredEntry) error {
		entry.Status = string(games.ParseStatus(entry.Status).Next())
		return nil
	})
}

// Delete removes the identified entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}
	kept := entries[:0]
	found := false
	for _, entry := range entries {
		if entry.ID == id {
			found = true
			continue
		}
		kept = append(kept, entry)
	}
	if !found {
		return ErrEntryNotFound
	}
	return s.save(ctx, kept)
}

func (s *Store) mutate(ctx context.Context, id string, apply func(*StoredEntry) error) (StoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return StoredEntry{}, err
	}
	for i := range entries {
		if entries[i].ID != id {
			continue
		}
		if err := apply(&entries[i]); err != nil {
			return StoredEntry{}, err
		}
		if err := s.save(ctx, entries); err != nil {
			return StoredEntry{}, err
		}
		return entries[i], nil
	}
	return StoredEntry{}, ErrEntryNotFound
}

func (s *Store) load(ctx context.Context) ([]StoredEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("guest: read slot: %w", err)
	}

	var entries []StoredEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.logger.Warn("guest slot held malformed JSON, treating as empty", zap.Error(err))
		return nil, nil
	}
	return entries, nil
}

func (s *Store) save(ctx context.Context, entries []StoredEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if entries == nil {
		entries = []StoredEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("guest: encode slot: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("guest: create slot directory: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("guest: write slot: %w", err)
	}
	return nil
}
