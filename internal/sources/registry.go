// Package sources downloads and probes the remote sites the screen draws on:
// the licensing registry extracts, the CACFP food program directory and the
// licensing transparency API.
package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/sawpanic/daycarewatch/internal/facility"
)

// ErrAllDownloadsFailed is returned when no registry extract could be fetched
var ErrAllDownloadsFailed = errors.New("every registry download failed")

// DatasetURLs are the CHHS open data extracts of the licensing registry
var DatasetURLs = map[facility.Dataset]string{
	facility.DatasetCenters: "https://data.chhs.ca.gov/dataset/46ffcbdf-4874-4cc1-92c2-fb715e3ad014/resource/7aed8063-cea7-4367-8651-c81643164ae0/download/tmpwya01y9s.csv",
	facility.DatasetHomes:   "https://data.chhs.ca.gov/dataset/46ffcbdf-4874-4cc1-92c2-fb715e3ad014/resource/4b5cc48d-03b1-4f42-a7d1-b9816903eb2b/download/tmpghf_prqt.csv",
}

// Download is the outcome for one dataset
type Download struct {
	Dataset facility.Dataset `json:"dataset"`
	Path    string           `json:"path,omitempty"`
	Rows    int              `json:"rows"`
	Err     error            `json:"-"`
}

// Registry fetches the registry extracts into a workspace
type Registry struct {
	client      *http.Client
	urls        map[facility.Dataset]string
	concurrency int
}

// NewRegistry creates a downloader. A nil urls map uses DatasetURLs.
func NewRegistry(client *http.Client, urls map[facility.Dataset]string, concurrency int) *Registry {
	if urls == nil {
		urls = DatasetURLs
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Registry{client: client, urls: urls, concurrency: concurrency}
}

// Download saves every dataset as raw_<dataset>.csv in dir. Failed datasets are
// logged and skipped; an error is returned only when all of them failed.
func (r *Registry) Download(ctx context.Context, dir string) ([]Download, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	var datasets []facility.Dataset
	for _, ds := range facility.Datasets {
		if _, ok := r.urls[ds]; ok {
			datasets = append(datasets, ds)
		}
	}

	results := make([]Download, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, ds := range datasets {
		g.Go(func() error {
			results[i] = r.fetch(gctx, ds, dir)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	for _, d := range results {
		if d.Err != nil {
			log.Error().Err(d.Err).Str("dataset", string(d.Dataset)).Msg("Registry download failed")
			continue
		}
		ok++
		log.Info().Str("dataset", string(d.Dataset)).Int("rows", d.Rows).Str("path", d.Path).Msg("Registry extract saved")
	}
	if ok == 0 {
		return results, ErrAllDownloadsFailed
	}
	return results, nil
}

func (r *Registry) fetch(ctx context.Context, ds facility.Dataset, dir string) Download {
	d := Download{Dataset: ds}
	path := filepath.Join(dir, ds.RawFile())

	if err := downloadFile(ctx, r.client, r.urls[ds], path); err != nil {
		d.Err = err
		return d
	}

	facilities, err := facility.ReadFile(path, ds)
	if err != nil {
		d.Err = err
		return d
	}
	d.Path = path
	d.Rows = len(facilities)
	return d
}

// downloadFile GETs url into path through a temporary file
func downloadFile(ctx context.Context, client *http.Client, url, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to read %s: %w", url, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
