package backlog

import (
	"context"
	"errors"
	"time"

	"backlog/internal/games"
	"backlog/internal/guest"
)

const timestampLayout = time.RFC3339

var (
	errMissingGuestStore   = errors.New("backlog: guest store is required")
	errMissingGamesService = errors.New("backlog: games service is required")

	// ErrNotAuthenticated indicates a remote store was requested without a session.
	ErrNotAuthenticated = errors.New("backlog: session carries no identity")
)

// Store is the operation surface shared by the guest slot and the remote
// collection. Every user-facing CRUD call goes through exactly one of the
// two implementations.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Add(ctx context.Context, entry NewEntry) (Entry, error)
	Update(ctx context.Context, id string, edits games.FieldEdits) (Entry, error)
	AdvanceStatus(ctx context.Context, id string) (Entry, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Session captures the authentication state a request carries. The zero
// value is a guest session.
type Session struct {
	OwnerID string
}

// Authenticated reports whether the session names an identity.
func (s Session) Authenticated() bool {
	return s.OwnerID != ""
}

// Selector routes every operation to the guest slot or the remote
// collection based solely on session identity presence. The decision is a
// pure function of the session, re-evaluated on every call.
type Selector struct {
	guest   *guest.Store
	service *games.Service
	limit   int
}

// NewSelector constructs the store selection policy. Both returned stores
// are wrapped by the capacity guard.
func NewSelector(guestStore *guest.Store, service *games.Service, limit int) (*Selector, error) {
	if guestStore == nil {
		return nil, errMissingGuestStore
	}
	if service == nil {
		return nil, errMissingGamesService
	}
	if limit <= 0 {
		limit = CapacityLimit
	}
	return &Selector{guest: guestStore, service: service, limit: limit}, nil
}

// Select returns the store the session is entitled to.
func (s *Selector) Select(session Session) (Store, error) {
	if !session.Authenticated() {
		return WithCapacity(&guestAdapter{store: s.guest}, s.limit), nil
	}
	owner, err := games.NewOwnerID(session.OwnerID)
	if err != nil {
		return nil, err
	}
	return WithCapacity(&remoteAdapter{service: s.service, owner: owner}, s.limit), nil
}

// guestAdapter renders the guest slot through the shared store surface.
type guestAdapter struct {
	store *guest.Store
}

func (a *guestAdapter) List(ctx context.Context) ([]Entry, error) {
	stored, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(stored))
	for _, entry := range stored {
		entries = append(entries, entryFromStored(entry))
	}
	return entries, nil
}

func (a *guestAdapter) Add(ctx context.Context, entry NewEntry) (Entry, error) {
	stored, err := a.store.Add(ctx, guest.StoredEntry{
		Name:     entry.Name,
		Platform: entry.Platform,
		Image:    entry.ImageURL,
		Status:   string(entry.Status),
	})
	if err != nil {
		return Entry{}, err
	}
	return entryFromStored(stored), nil
}

func (a *guestAdapter) Update(ctx context.Context, id string, edits games.FieldEdits) (Entry, error) {
	stored, err := a.store.Update(ctx, id, edits)
	if err != nil {
		return Entry{}, err
	}
	return entryFromStored(stored), nil
}

func (a *guestAdapter) AdvanceStatus(ctx context.Context, id string) (Entry, error) {
	stored, err := a.store.AdvanceStatus(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	return entryFromStored(stored), nil
}

func (a *guestAdapter) Delete(ctx context.Context, id string) error {
	return a.store.Delete(ctx, id)
}

func (a *guestAdapter) Count(ctx context.Context) (int, error) {
	return a.store.Count(ctx)
}

// remoteAdapter binds the games service to one authenticated owner.
type remoteAdapter struct {
	service *games.Service
	owner   games.OwnerID
}

func (a *remoteAdapter) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.service.List(ctx, a.owner)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, entryFromGame(row))
	}
	return entries, nil
}

func (a *remoteAdapter) Add(ctx context.Context, entry NewEntry) (Entry, error) {
	row, err := a.service.Create(ctx, a.owner, games.NewGame{
		Name:     entry.Name,
		Platform: entry.Platform,
		ImageURL: entry.ImageURL,
		Status:   entry.Status,
	})
	if err != nil {
		return Entry{}, err
	}
	return entryFromGame(row), nil
}

func (a *remoteAdapter) Update(ctx context.Context, id string, edits games.FieldEdits) (Entry, error) {
	gameID, err := games.NewGameID(id)
	if err != nil {
		return Entry{}, err
	}
	row, err := a.service.Update(ctx, a.owner, gameID, edits)
	if err != nil {
		return Entry{}, err
	}
	return entryFromGame(row), nil
}

func (a *remoteAdapter) AdvanceStatus(ctx context.Context, id string) (Entry, error) {
	gameID, err := games.NewGameID(id)
	if err != nil {
		return Entry{}, err
	}
	row, err := a.service.AdvanceStatus(ctx, a.owner, gameID)
	if err != nil {
		return Entry{}, err
	}
	return entryFromGame(row), nil
}

func (a *remoteAdapter) Delete(ctx context.Context, id string) error {
	gameID, err := games.NewGameID(id)
	if err != nil {
		return err
	}
	return a.service.Delete(ctx, a.owner, gameID)
}

func (a *remoteAdapter) Count(ctx context.Context) (int, error) {
	return a.service.Count(ctx, a.owner)
}
