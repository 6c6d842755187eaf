// Package gribsvc implements the file lifecycle and data access operations
// behind the HTTP API: upload, URL fetch, listing, deletion, and translating
// decoded fields into viewer payloads.
package gribsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/loganrenz/narduk-grib/internal/decoder"
	"github.com/loganrenz/narduk-grib/internal/domain"
	"github.com/loganrenz/narduk-grib/internal/fetch"
	"github.com/loganrenz/narduk-grib/internal/observability"
	"github.com/loganrenz/narduk-grib/internal/store"
)

// DatasetDecoder decodes stored blobs into datasets and drops cached results
// when a blob is deleted.
type DatasetDecoder interface {
	Decode(path string) (*domain.Dataset, error)
	Invalidate(path string)
}

// Fetcher opens a validated, size-capped download stream for a remote URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// EventPublisher emits file lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.FileEvent) error
}

// Service coordinates blob storage, the catalog, decoding, and events.
type Service struct {
	blobs   *store.Blobs
	catalog *store.Catalog
	decoder DatasetDecoder
	fetcher Fetcher
	events  EventPublisher
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New wires a Service from its dependencies.
func New(blobs *store.Blobs, catalog *store.Catalog, dec DatasetDecoder, fetcher Fetcher, events EventPublisher, logger *slog.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		blobs:   blobs,
		catalog: catalog,
		decoder: dec,
		fetcher: fetcher,
		events:  events,
		logger:  logger,
		metrics: metrics,
	}
}

// CheckReadiness reports whether the service can take traffic: the catalog
// must answer and the storage directory must accept writes.
func (s *Service) CheckReadiness(ctx context.Context) error {
	if err := s.catalog.Ping(ctx); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	probe, err := os.CreateTemp(s.blobs.Dir(), ".readyz-*")
	if err != nil {
		return fmt.Errorf("storage not writable: %w", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// Upload stores a client-provided GRIB file and catalogs it. The stream is
// rejected before any bytes hit disk if it does not start with the GRIB magic.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader) (domain.FileInfo, error) {
	info, err := s.save(ctx, filename, r, domain.SourceUpload, "")
	if err != nil {
		return domain.FileInfo{}, err
	}

	s.metrics.UploadBytes.Observe(float64(info.Size))
	s.publish(ctx, domain.NewFileEvent(domain.FileUploaded, info))
	s.logger.Info("file uploaded",
		"file_id", info.ID,
		"filename", info.Filename,
		"size", info.Size,
	)
	return info, nil
}

// FetchFromURL downloads a GRIB file from a remote URL and catalogs it.
func (s *Service) FetchFromURL(ctx context.Context, rawURL string) (domain.FileInfo, error) {
	res, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		s.metrics.Downloads.WithLabelValues(downloadOutcome(err)).Inc()
		return domain.FileInfo{}, err
	}
	defer res.Body.Close()

	info, err := s.save(ctx, res.Filename, res.Body, domain.SourceURL, rawURL)
	if err != nil {
		s.metrics.Downloads.WithLabelValues(downloadOutcome(err)).Inc()
		return domain.FileInfo{}, err
	}

	s.metrics.Downloads.WithLabelValues("success").Inc()
	s.metrics.DownloadBytes.Observe(float64(info.Size))
	s.publish(ctx, domain.NewFileEvent(domain.FileFetched, info))
	s.logger.Info("file fetched",
		"file_id", info.ID,
		"filename", info.Filename,
		"size", info.Size,
		"url", rawURL,
	)
	return info, nil
}

// List returns all stored files, newest first.
func (s *Service) List(ctx context.Context) ([]domain.FileInfo, error) {
	return s.catalog.List(ctx)
}

// Get returns the catalog entry for one file.
func (s *Service) Get(ctx context.Context, id string) (domain.FileInfo, error) {
	return s.catalog.Get(ctx, id)
}

// Delete removes a file from the catalog, disk, and decode cache.
func (s *Service) Delete(ctx context.Context, id string) error {
	info, err := s.catalog.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(id); err != nil {
		return err
	}
	s.decoder.Invalidate(s.blobs.Path(id))

	s.refreshStoredFiles(ctx)
	s.publish(ctx, domain.NewFileEvent(domain.FileDeleted, info))
	s.logger.Info("file deleted", "file_id", id, "filename", info.Filename)
	return nil
}

// Metadata decodes a stored file and returns its summary view.
func (s *Service) Metadata(ctx context.Context, id string) (domain.Metadata, error) {
	ds, _, err := s.dataset(ctx, id)
	if err != nil {
		return domain.Metadata{}, err
	}
	return domain.BuildMetadata(ds), nil
}

// Data decodes a stored file and returns the viewer payload, optionally
// filtered to one variable and the nearest isobaric level.
func (s *Service) Data(ctx context.Context, id, variable string, level *float64) (*domain.DataResponse, error) {
	ds, info, err := s.dataset(ctx, id)
	if err != nil {
		return nil, err
	}

	// Cached datasets are shared between requests; stamp identity on a copy.
	view := *ds
	view.FileID = info.ID
	view.Filename = info.Filename
	return domain.BuildDataResponse(&view, variable, level)
}

// save runs the shared upload/fetch path: magic check, blob write, catalog
// insert. A failed insert rolls the blob back so the two stay consistent.
func (s *Service) save(ctx context.Context, filename string, r io.Reader, source domain.FileSource, originURL string) (domain.FileInfo, error) {
	prefix := make([]byte, len(decoder.Magic))
	if _, err := io.ReadFull(r, prefix); err != nil || !decoder.IsGRIB(prefix) {
		return domain.FileInfo{}, decoder.ErrNotGRIB
	}

	id := uuid.NewString()
	size, err := s.blobs.Save(id, io.MultiReader(bytes.NewReader(prefix), r))
	if err != nil {
		return domain.FileInfo{}, err
	}

	if filename == "" {
		filename = id + ".grib2"
	}
	info := domain.FileInfo{
		ID:         id,
		Filename:   filename,
		Size:       size,
		Source:     source,
		OriginURL:  originURL,
		UploadedAt: domain.Clock().Now().UTC(),
	}
	if err := s.catalog.Insert(ctx, info); err != nil {
		_ = s.blobs.Delete(id)
		return domain.FileInfo{}, err
	}

	s.refreshStoredFiles(ctx)
	return info, nil
}

func (s *Service) dataset(ctx context.Context, id string) (*domain.Dataset, domain.FileInfo, error) {
	info, err := s.catalog.Get(ctx, id)
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	ds, err := s.decoder.Decode(s.blobs.Path(id))
	if err != nil {
		return nil, domain.FileInfo{}, err
	}
	return ds, info, nil
}

func (s *Service) publish(ctx context.Context, event domain.FileEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish file event failed",
			"event", string(event.Type),
			"file_id", event.File.ID,
			"error", err,
		)
	}
}

func (s *Service) refreshStoredFiles(ctx context.Context) {
	if n, err := s.catalog.Count(ctx); err == nil {
		s.metrics.StoredFiles.Set(float64(n))
	}
}

func downloadOutcome(err error) string {
	var vErr *domain.URLValidationError
	if errors.As(err, &vErr) || errors.Is(err, fetch.ErrTooLarge) {
		return "rejected"
	}
	return "error"
}
