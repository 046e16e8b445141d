package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const (
	// DefaultSeriesURL is the default location of the monthly interest series.
	DefaultSeriesURL = "https://www.dropbox.com/s/s22hx31zgjshngr/stockTrendData.csv?dl=1"
	// maxSeriesSize is the maximum accepted size of a raw series.
	maxSeriesSize = 1 << 20
)

// SeriesConfig represents the raw interest series source configuration.
type SeriesConfig struct {
	// URL is the location the series is downloaded from.
	URL string
	// FilePath is the path of a local series file, preferred over the url when set.
	FilePath string
}

// Validate asserts the config sane inputs.
func (cfg *SeriesConfig) Validate() error {
	if cfg.URL == "" && cfg.FilePath == "" {
		return errors.New("either a series url or file path must be provided")
	}

	return nil
}

// SeriesClient fetches the raw monthly interest series.
type SeriesClient struct {
	cfg   *SeriesConfig
	httpc http.Client
}

// NewSeriesClient initializes a new series client.
func NewSeriesClient(cfg *SeriesConfig) (*SeriesClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validating series config: %w", err)
	}

	return &SeriesClient{
		cfg:   cfg,
		httpc: http.Client{Timeout: time.Second * 5},
	}, nil
}

// Fetch returns the raw series text.
func (c *SeriesClient) Fetch(ctx context.Context) (string, error) {
	if c.cfg.FilePath != "" {
		b, err := os.ReadFile(c.cfg.FilePath)
		if err != nil {
			return "", fmt.Errorf("reading series from file with path '%s': %w", c.cfg.FilePath, err)
		}

		return string(b), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading series: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status downloading series: %s", resp.Status)
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxSeriesSize+1))
	if err != nil {
		return "", fmt.Errorf("reading series response body: %w", err)
	}
	if len(b) > maxSeriesSize {
		return "", fmt.Errorf("series response body exceeds %d bytes", maxSeriesSize)
	}

	return string(b), nil
}
