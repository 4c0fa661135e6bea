package games

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the play states an entry moves through.
type Status string

const (
	// StatusPending marks an entry that has not been started.
	StatusPending Status = "pending"
	// StatusPlaying marks an entry currently being played.
	StatusPlaying Status = "playing"
	// StatusCompleted marks a finished entry.
	StatusCompleted Status = "completed"
)

// DefaultPlatform is assumed when an entry carries no platform at all.
const DefaultPlatform = "Steam"

const maxIdentifierLength = 190

var (
	// ErrInvalidGameID indicates that a game identifier is empty or exceeds storage bounds.
	ErrInvalidGameID = errors.New("games: invalid game id")
	// ErrInvalidOwnerID indicates that an owner identifier is empty or exceeds storage bounds.
	ErrInvalidOwnerID = errors.New("games: invalid owner id")
	// ErrInvalidName indicates that a display name is blank after trimming.
	ErrInvalidName = errors.New("games: invalid name")
)

// ParseStatus coerces raw input into the three-valued status enumeration.
// Unrecognized or missing values fall back to pending.
func ParseStatus(raw string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(raw))) {
	case StatusPlaying:
		return StatusPlaying
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Next returns the status following the pending → playing → completed cycle.
func (s Status) Next() Status {
	switch s {
	case StatusPending:
		return StatusPlaying
	case StatusPlaying:
		return StatusCompleted
	default:
		return StatusPending
	}
}

// Valid reports whether the status is one of the enumerated values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPlaying, StatusCompleted:
		return true
	default:
		return false
	}
}

// Platforms lists the store fronts the application offers. Free text is
// tolerated elsewhere; this is the menu, not a constraint.
func Platforms() []string {
	return []string{"Steam", "Epic", "GOG", "Xbox", "PlayStation", "Switch"}
}

// NormalizePlatform trims the raw value and substitutes the default when
// nothing remains.
func NormalizePlatform(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return DefaultPlatform
	}
	return trimmed
}

// catalogPlatformMap translates catalog provider platform names into the
// local platform menu.
var catalogPlatformMap = map[string]string{
	"PC":              "Steam",
	"PlayStation 5":   "PlayStation",
	"PlayStation 4":   "PlayStation",
	"Xbox Series S/X": "Xbox",
	"Xbox One":        "Xbox",
	"Nintendo Switch": "Switch",
}

// PlatformFromCatalog picks the first catalog platform name that maps onto
// the local menu. The second return reports whether a mapping was found.
func PlatformFromCatalog(names []string) (string, bool) {
	for _, name := range names {
		if mapped, ok := catalogPlatformMap[strings.TrimSpace(name)]; ok {
			return mapped, true
		}
	}
	return "", false
}

// GameID represents a validated game identifier.
type GameID string

// NewGameID validates raw input and returns a GameID.
func NewGameID(rawInput string) (GameID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidGameID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidGameID, maxIdentifierLength)
	}
	return GameID(trimmed), nil
}

// String returns the underlying string identifier.
func (id GameID) String() string {
	return string(id)
}

// OwnerID represents a validated owner identifier.
type OwnerID string

// NewOwnerID validates raw input and returns an OwnerID.
func NewOwnerID(rawInput string) (OwnerID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidOwnerID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidOwnerID, maxIdentifierLength)
	}
	return OwnerID(trimmed), nil
}

// String returns the underlying string identifier.
func (id OwnerID) String() string {
	return string(id)
}

// Game models a persisted backlog entry in the remote collection.
type Game struct {
	ID        string    `gorm:"column:id;primaryKey;size:36;not null"`
	OwnerID   string    `gorm:"column:owner_id;size:190;not null;index:idx_games_owner_created,priority:1"`
	Name      string    `gorm:"column:name;size:320;not null"`
	Platform  string    `gorm:"column:platform;size:64;not null"`
	ImageURL  string    `gorm:"column:image_url;size:1024"`
	Status    Status    `gorm:"column:status;size:16;not null;default:'pending'"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_games_owner_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Game) TableName() string {
	return "games"
}

// NewGame describes an entry about to be inserted. Identifier and creation
// timestamp are assigned by the service, never by the caller.
type NewGame struct {
	Name     string
	Platform string
	ImageURL string
	Status   Status
}

// Validate checks the insert payload against the data model invariants.
func (g NewGame) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if !g.Status.Valid() {
		return fmt.Errorf("games: invalid status %q", g.Status)
	}
	return nil
}

// FieldEdits captures an owner-initiated partial edit. Nil fields are left
// untouched.
type FieldEdits struct {
	Name     *string
	Platform *string
	ImageURL *string
	Status   *Status
}
