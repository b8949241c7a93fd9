package service

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/smartprint/printstage/internal/apperr"
	"github.com/smartprint/printstage/internal/models"
	"github.com/smartprint/printstage/internal/storage"
)

// StagerService materializes local working copies of a user's pending
// files for presentation.
//
// A concurrent finalize for the same user may delete a copy while it is
// being (re)staged; callers wanting stronger guarantees must serialize
// staging and finalization per user.
type StagerService struct {
	registry     Registry
	staging      Staging
	users        UserDirectory
	client       *http.Client
	fetchTimeout time.Duration
	log          *slog.Logger
}

// NewStagerService creates the stager. client may be nil, in which case
// http.DefaultClient is used; fetchTimeout bounds each remote fetch.
func NewStagerService(registry Registry, staging Staging, users UserDirectory, client *http.Client, fetchTimeout time.Duration, log *slog.Logger) *StagerService {
	if client == nil {
		client = http.DefaultClient
	}
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &StagerService{
		registry:     registry,
		staging:      staging,
		users:        users,
		client:       client,
		fetchTimeout: fetchTimeout,
		log:          log,
	}
}

// StageAll downloads every pending file of the user into the staging
// store, one goroutine per file, and returns one entry per file whether
// or not its download succeeded. A failed file keeps only its remote
// descriptor, with the failure attached to that entry; it never aborts
// the rest of the batch. Staging does not change any persisted status.
func (s *StagerService) StageAll(ctx context.Context, userID string) ([]models.StagedFile, error) {
	ctx, span := tracer.Start(ctx, "stage_all",
		trace.WithAttributes(attribute.String("user_id", userID)),
	)
	defer span.End()

	if _, err := s.users.ResolveUser(ctx, userID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	files, err := s.registry.ListFilesByStatus(ctx, userID, models.StatusPending)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))

	// One entry per file, settled in place. The join waits for every
	// download; individual failures are recorded on their entry instead
	// of short-circuiting the batch.
	results := make([]models.StagedFile, len(files))
	var wg sync.WaitGroup

	for i, file := range files {
		results[i] = models.StagedFile{File: file}

		wg.Add(1)
		go func(idx int, file *models.File) {
			defer wg.Done()

			_, fileSpan := tracer.Start(ctx, "stage_file",
				trace.WithAttributes(
					attribute.String("file_id", file.ID),
					attribute.String("file_name", file.Filename),
				),
			)
			defer fileSpan.End()

			key := storage.StagedKey(file.ID, file.Filename)
			if err := s.stageOne(ctx, file, key); err != nil {
				fileSpan.RecordError(err)
				s.log.Warn("staging failed", "file_id", file.ID, "filename", file.Filename, "error", err)
				results[idx].Err = err
				return
			}

			results[idx].LocalURL = StagedURLPrefix + key
			fileSpan.SetAttributes(attribute.Bool("staged", true))
		}(i, file)
	}

	wg.Wait()
	return results, nil
}

// stageOne fetches one file's remote content and writes it into the
// staging store under its derived key. The write only becomes visible
// once complete, and restaging overwrites the previous copy at the same
// key.
func (s *StagerService) stageOne(ctx context.Context, file *models.File, key string) error {
	fctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return &apperr.FetchError{URL: file.URL, Err: err}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &apperr.FetchError{URL: file.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &apperr.FetchError{URL: file.URL, StatusCode: resp.StatusCode}
	}

	return s.staging.Put(fctx, key, file.FileType, resp.Body)
}
