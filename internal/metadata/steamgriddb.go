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
	defaultArtworkBaseURL = "https://www.steamgriddb.com/api/v2"
	gridDimensions        = "600x900"
)

// ArtworkConfig bundles configuration for the SteamGridDB client.
type ArtworkConfig struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// ArtworkClient looks up high-resolution cover art by game name. The
// provider is best-effort: an absent credential degrades to no artwork.
type ArtworkClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewArtworkClient constructs the artwork client.
func NewArtworkClient(cfg ArtworkConfig) *ArtworkClient {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultArtworkBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArtworkClient{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BestGrid returns the best-match 600x900 grid URL for the game name, or
// an empty string when nothing matches or no credential is configured.
func (c *ArtworkClient) BestGrid(ctx context.Context, gameName string) (string, error) {
	name := strings.TrimSpace(gameName)
	if name == "" || c.apiKey == "" {
		return "", nil
	}

	searchEndpoint := fmt.Sprintf("%s/search/autocomplete/%s", c.baseURL, url.PathEscape(name))
	var search artworkSearchDocument
	if err := c.getJSON(ctx, searchEndpoint, &search); err != nil {
		return "", err
	}
	if len(search.Data) == 0 {
		return "", nil
	}

	gridsEndpoint := fmt.Sprintf("%s/grids/game/%d?dimensions=%s", c.baseURL, search.Data[0].ID, gridDimensions)
	var grids artworkGridDocument
	if err := c.getJSON(ctx, gridsEndpoint, &grids); err != nil {
		return "", err
	}
	if len(grids.Data) == 0 {
		return "", nil
	}
	return grids.Data[0].URL, nil
}

func (c *ArtworkClient) getJSON(ctx context.Context, endpoint string, target interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	response, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("metadata: artwork request returned status %d", response.StatusCode)
	}
	return json.NewDecoder(response.Body).Decode(target)
}

type artworkSearchDocument struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

type artworkGridDocument struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}
