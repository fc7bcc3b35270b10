package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"chartdeck.aero/cli/internal/core/domain"
	"chartdeck.aero/cli/internal/core/ports"
)

// Downloader fetches a backend-issued signed URL without auth headers.
type Downloader interface {
	Download(ctx context.Context, url string) ([]byte, error)
}

// LibrarySync mirrors the chart library for the current AIRAC cycle into the
// versioned cache: the airport index, per-airport chart indexes, and
// (optionally) the chart documents themselves via signed URLs.
type LibrarySync struct {
	executor   ports.RequestExecutor
	downloader Downloader
	cache      ports.CacheStore
	logger     *slog.Logger
}

// NewLibrarySync creates the sync service.
func NewLibrarySync(executor ports.RequestExecutor, downloader Downloader, cache ports.CacheStore, logger *slog.Logger) *LibrarySync {
	return &LibrarySync{
		executor:   executor,
		downloader: downloader,
		cache:      cache,
		logger:     logger,
	}
}

// SyncOptions narrows a sync run.
type SyncOptions struct {
	// Airports limits the chart sync to the given ICAO codes. Empty means
	// every airport in the index.
	Airports []string

	// DownloadDocuments also fetches chart documents through their signed
	// URLs. Document payloads dominate cache size.
	DownloadDocuments bool
}

// SyncReport summarizes what a sync run stored.
type SyncReport struct {
	Cycle     domain.VersionTag
	Airports  int
	Charts    int
	Documents int
}

type airportIndex struct {
	Airports []struct {
		ICAO string `json:"icao"`
		Name string `json:"name"`
	} `json:"airports"`
}

type chartIndex struct {
	Charts []struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		SignedURL string `json:"signed_url"`
	} `json:"charts"`
}

// Run syncs the library for the current cycle. It fails fast when no cycle
// has been recorded yet (the rollover coordinator has to run first).
func (s *LibrarySync) Run(ctx context.Context, opts SyncOptions) (SyncReport, error) {
	tag, err := s.cache.CurrentVersion()
	if err != nil {
		return SyncReport{}, fmt.Errorf("resolve current AIRAC cycle: %w", err)
	}
	if tag.IsZero() {
		return SyncReport{}, domain.ErrNoCurrentVersion
	}
	report := SyncReport{Cycle: tag}

	index, err := s.syncAirportIndex(ctx, tag)
	if err != nil {
		return report, err
	}

	wanted := map[string]bool{}
	for _, icao := range opts.Airports {
		wanted[icao] = true
	}

	for _, airport := range index.Airports {
		if len(wanted) > 0 && !wanted[airport.ICAO] {
			continue
		}
		report.Airports++

		charts, err := s.syncChartIndex(ctx, tag, airport.ICAO)
		if err != nil {
			// One airport failing should not abort the rest of the run.
			s.logger.Warn("chart index sync failed", "icao", airport.ICAO, "error", err)
			continue
		}
		report.Charts += len(charts.Charts)

		if !opts.DownloadDocuments {
			continue
		}
		for _, chart := range charts.Charts {
			if chart.SignedURL == "" {
				continue
			}
			if err := s.downloadDocument(ctx, tag, chart.ID, chart.SignedURL); err != nil {
				s.logger.Warn("document download failed", "chart", chart.ID, "error", err)
				continue
			}
			report.Documents++
		}
	}

	return report, nil
}

func (s *LibrarySync) syncAirportIndex(ctx context.Context, tag domain.VersionTag) (airportIndex, error) {
	resp, err := s.executor.Do(ctx, domain.Request{
		Method:        http.MethodGet,
		Path:          fmt.Sprintf("/api/v1/airac/%s/airports", tag),
		Authenticated: true,
	})
	if err != nil {
		return airportIndex{}, fmt.Errorf("fetch airport index: %w", err)
	}

	var index airportIndex
	if err := json.Unmarshal(resp.Body, &index); err != nil {
		return airportIndex{}, &domain.DecodingError{Err: err}
	}

	key := domain.CacheKey{Tag: tag, Category: domain.CategoryAirports, ID: "index"}
	if err := s.cache.Store(key, resp.Body); err != nil {
		return airportIndex{}, fmt.Errorf("cache airport index: %w", err)
	}
	return index, nil
}

func (s *LibrarySync) syncChartIndex(ctx context.Context, tag domain.VersionTag, icao string) (chartIndex, error) {
	resp, err := s.executor.Do(ctx, domain.Request{
		Method:        http.MethodGet,
		Path:          fmt.Sprintf("/api/v1/airac/%s/charts", tag),
		Query:         map[string]string{"icao": icao},
		Authenticated: true,
	})
	if err != nil {
		return chartIndex{}, fmt.Errorf("fetch chart index for %s: %w", icao, err)
	}

	var index chartIndex
	if err := json.Unmarshal(resp.Body, &index); err != nil {
		return chartIndex{}, &domain.DecodingError{Err: err}
	}

	key := domain.CacheKey{Tag: tag, Category: domain.CategoryCharts, ID: icao}
	if err := s.cache.Store(key, resp.Body); err != nil {
		return chartIndex{}, fmt.Errorf("cache chart index for %s: %w", icao, err)
	}
	return index, nil
}

func (s *LibrarySync) downloadDocument(ctx context.Context, tag domain.VersionTag, chartID, signedURL string) error {
	payload, err := s.downloader.Download(ctx, signedURL)
	if err != nil {
		return err
	}
	key := domain.CacheKey{Tag: tag, Category: domain.CategoryDocuments, ID: chartID}
	return s.cache.Store(key, payload)
}
