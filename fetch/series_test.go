package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
)

func TestSeriesClient(t *testing.T) {
	blob := "Month,interest\r\n2004-01,10\r\n2004-02,12\r\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/large.csv" {
			padding := strings.Repeat("x", maxSeriesSize-len(blob))
			_, _ = w.Write([]byte(blob + padding + "\r\n2018-09,55\r\n"))
			return
		}

		if r.URL.Path == "/exact.csv" {
			_, _ = w.Write([]byte(blob + strings.Repeat("\n", maxSeriesSize-len(blob))))
			return
		}

		if r.URL.Path != "/series.csv" {
			w.WriteHeader(http.StatusNotFound)
			return
		}

		_, _ = w.Write([]byte(blob))
	}))
	defer srv.Close()

	// Ensure a source must be provided.
	_, err := NewSeriesClient(&SeriesConfig{})
	assert.Error(t, err)

	// Ensure the series can be downloaded.
	client, err := NewSeriesClient(&SeriesConfig{URL: srv.URL + "/series.csv"})
	assert.NoError(t, err)

	got, err := client.Fetch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, got, blob)

	// Ensure unexpected status codes error.
	client, err = NewSeriesClient(&SeriesConfig{URL: srv.URL + "/missing.csv"})
	assert.NoError(t, err)

	_, err = client.Fetch(context.Background())
	assert.Error(t, err)

	// Ensure oversized series error instead of being truncated.
	client, err = NewSeriesClient(&SeriesConfig{URL: srv.URL + "/large.csv"})
	assert.NoError(t, err)

	got, err = client.Fetch(context.Background())
	assert.Error(t, err)
	assert.Equal(t, got, "")

	// Ensure a series at the size limit is accepted.
	client, err = NewSeriesClient(&SeriesConfig{URL: srv.URL + "/exact.csv"})
	assert.NoError(t, err)

	got, err = client.Fetch(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, len(got), maxSeriesSize)

	// Ensure a file path is preferred over the url.
	client, err = NewSeriesClient(&SeriesConfig{URL: srv.URL + "/missing.csv", FilePath: "../testdata/interest.csv"})
	assert.NoError(t, err)

	got, err = client.Fetch(context.Background())
	assert.NoError(t, err)
	assert.NotEqual(t, got, "")

	// Ensure a missing file errors.
	client, err = NewSeriesClient(&SeriesConfig{FilePath: "../testdata/missing.csv"})
	assert.NoError(t, err)

	_, err = client.Fetch(context.Background())
	assert.Error(t, err)
}
