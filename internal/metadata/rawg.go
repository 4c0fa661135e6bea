package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultCatalogBaseURL = "https://api.rawg.io/api"
	catalogPageSize       = 5
)

// Candidate is one catalog match for a free-text name query.
type Candidate struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	Image     string   `json:"image,omitempty"`
	Platforms []string `json:"platforms"`
}

// CatalogConfig bundles configuration for the RAWG catalog client.
type CatalogConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// CatalogClient queries the RAWG game catalog by name. The provider is
// best-effort: an absent credential degrades to empty results.
type CatalogClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCatalogClient constructs the catalog client.
func NewCatalogClient(cfg CatalogConfig) *CatalogClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultCatalogBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Search returns up to five candidate matches for the query. A blank
// query or a missing credential yields an empty result without error.
func (c *CatalogClient) Search(ctx context.Context, query string) ([]Candidate, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" || c.apiKey == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("key", c.apiKey)
	params.Set("search", trimmed)
	params.Set("page_size", fmt.Sprintf("%d", catalogPageSize))
	endpoint := fmt.Sprintf("%s/games?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	response, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata: catalog request returned status %d", response.StatusCode)
	}

	var document catalogDocument
	if err := json.NewDecoder(response.Body).Decode(&document); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(document.Results))
	for _, result := range document.Results {
		platforms := make([]string, 0, len(result.Platforms))
		for _, wrapper := range result.Platforms {
			if name := strings.TrimSpace(wrapper.Platform.Name); name != "" {
				platforms = append(platforms, name)
			}
		}
		candidates = append(candidates, Candidate{
			ID:        result.ID,
			Name:      result.Name,
			Image:     result.BackgroundImage,
			Platforms: platforms,
		})
	}
	return candidates, nil
}

type catalogDocument struct {
	Results []catalogResult `json:"results"`
}

type catalogResult struct {
	ID              int64                    `json:"id"`
	Name            string                   `json:"name"`
	BackgroundImage string                   `json:"background_image"`
	Platforms       []catalogPlatformWrapper `json:"platforms"`
}

type catalogPlatformWrapper struct {
	Platform struct {
		Name string `json:"name"`
	} `json:"platform"`
}
