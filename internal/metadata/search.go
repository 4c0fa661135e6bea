package metadata

import (
	"context"

	"go.uber.org/zap"
)

// Searcher composes the catalog and artwork providers into the type-ahead
// search surface. Provider failures are swallowed: the caller always
// receives a (possibly empty) result set, never an error.
type Searcher struct {
	catalog *CatalogClient
	artwork *ArtworkClient
	logger  *zap.Logger
}

// NewSearcher constructs the composed search.
func NewSearcher(catalog *CatalogClient, artwork *ArtworkClient, logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{catalog: catalog, artwork: artwork, logger: logger}
}

// Search returns up to five candidates for the query, each carrying the
// high-resolution grid when the artwork provider has one and the catalog
// image otherwise.
func (s *Searcher) Search(ctx context.Context, query string) []Candidate {
	candidates, err := s.catalog.Search(ctx, query)
	if err != nil {
		s.logger.Warn("catalog search failed", zap.String("query", query), zap.Error(err))
		return nil
	}

	for i := range candidates {
		grid, err := s.artwork.BestGrid(ctx, candidates[i].Name)
		if err != nil {
			s.logger.Debug("artwork lookup failed",
				zap.String("game", candidates[i].Name),
				zap.Error(err))
			continue
		}
		if grid != "" {
			candidates[i].Image = grid
		}
	}
	return candidates
}
