package backlog

import (
	"strings"

	"backlog/internal/games"
	"backlog/internal/guest"
)

// Entry is the store-neutral view of a backlog entry, rendered the same
// way whether it lives in the guest slot or the remote collection.
type Entry struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Platform  string       `json:"platform"`
	ImageURL  string       `json:"image,omitempty"`
	Status    games.Status `json:"status"`
	CreatedAt string       `json:"created_at"`
}

// NewEntry describes an entry about to be created through either store.
type NewEntry struct {
	Name     string
	Platform string
	ImageURL string
	Status   games.Status
}

// Normalize turns the raw guest collection into validated insert payloads
// for migration. Entries without a usable name are dropped; name and
// platform are trimmed with the platform defaulting to Steam; the status
// is coerced into the enumeration; local identifiers and creation
// timestamps are discarded, since the remote store assigns both.
func Normalize(stored []guest.StoredEntry) []games.NewGame {
	normalized := make([]games.NewGame, 0, len(stored))
	for _, entry := range stored {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		normalized = append(normalized, games.NewGame{
			Name:     name,
			Platform: games.NormalizePlatform(entry.Platform),
			ImageURL: entry.Image,
			Status:   games.ParseStatus(entry.Status),
		})
	}
	return normalized
}

func entryFromStored(stored guest.StoredEntry) Entry {
	return Entry{
		ID:        stored.ID,
		Name:      stored.Name,
		Platform:  stored.Platform,
		ImageURL:  stored.Image,
		Status:    games.ParseStatus(stored.Status),
		CreatedAt: stored.CreatedAt,
	}
}

func entryFromGame(row games.Game) Entry {
	return Entry{
		ID:        row.ID,
		Name:      row.Name,
		Platform:  row.Platform,
		ImageURL:  row.ImageURL,
		Status:    row.Status,
		CreatedAt: row.CreatedAt.UTC().Format(timestampLayout),
	}
}
