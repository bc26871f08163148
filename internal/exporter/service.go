// Package exporter provides the export session orchestration: it walks a
// job's root entities through the bulk-query pipeline, then drives the
// relationship traversal until no related tasks remain.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"

	"github.com/datalift/bulkvault/internal/blob"
	"github.com/datalift/bulkvault/internal/bulk"
	"github.com/datalift/bulkvault/internal/config"
	"github.com/datalift/bulkvault/internal/csvutil"
	"github.com/datalift/bulkvault/internal/lock"
	"github.com/datalift/bulkvault/internal/logger"
	"github.com/datalift/bulkvault/internal/relationship"
	"github.com/datalift/bulkvault/internal/sink"
	"github.com/datalift/bulkvault/internal/transport"
	"github.com/datalift/bulkvault/internal/types"
)

// SessionResult contains statistics and status of one export session.
type SessionResult struct {
	JobName     string
	SessionID   string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Stats       types.SessionStats
	Outcomes    []*types.ExportOutcome
	Errors      []error
	Success     bool
}

// Service coordinates one export job: root entity exports, relationship
// traversal, blob fetching and sink storage.
type Service struct {
	config        *config.Config
	jobName       string
	jobConfig     *config.JobConfig
	processingCfg config.ProcessingConfig

	tm           *transport.Manager
	client       *bulk.Client
	analyzer     *relationship.Analyzer
	orchestrator *relationship.Orchestrator
	fetcher      *blob.Fetcher
	store        sink.Sink
	logger       *logger.Logger

	sessionID string
	outputDir string

	mu     sync.Mutex
	result *SessionResult

	showProgress bool
}

// NewService creates an export service for one named job.
func NewService(cfg *config.Config, jobName string, store sink.Sink, log *logger.Logger) (*Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	jobCfg, err := cfg.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}

	sessionID := uuid.New().String()
	log = log.WithSession(sessionID).WithFields(map[string]interface{}{"job": jobName})

	processingCfg := jobCfg.GetJobProcessing(cfg.Processing)

	tm := transport.NewManager(cfg.Remote, log)
	client := bulk.NewClient(cfg.Remote, processingCfg, tm, log)
	analyzer := relationship.NewAnalyzer(client, log)

	maxDepth := jobCfg.MaxDepth
	if maxDepth < 1 {
		maxDepth = 1
	}

	return &Service{
		config:        cfg,
		jobName:       jobName,
		jobConfig:     jobCfg,
		processingCfg: processingCfg,
		tm:            tm,
		client:        client,
		analyzer:      analyzer,
		orchestrator: relationship.NewOrchestrator(
			analyzer, log, maxDepth, processingCfg.PredicateIDLimit, jobCfg.PriorityOnly),
		fetcher:   blob.NewFetcher(client, log),
		store:     store,
		logger:    log,
		sessionID: sessionID,
		outputDir: cfg.Output.Folder,
	}, nil
}

// SessionID returns the unique identifier of this export session.
func (s *Service) SessionID() string {
	return s.sessionID
}

// EnableProgress turns on per-entity terminal progress bars.
func (s *Service) EnableProgress() {
	s.showProgress = true
}

// Close releases the transport pool.
func (s *Service) Close() {
	s.tm.Close()
}

// Execute runs the export session end to end: root entities concurrently,
// then the related-task queue until it drains. The output directory is
// locked for the duration of the run.
func (s *Service) Execute(ctx context.Context) (*SessionResult, error) {
	s.result = &SessionResult{
		JobName:   s.jobName,
		SessionID: s.sessionID,
		StartedAt: time.Now(),
	}

	dirLock := lock.NewDirLock(s.outputDir)
	if err := dirLock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrAlreadyLocked) {
			return nil, fmt.Errorf("another export is writing to %s (pid %d): %w",
				s.outputDir, dirLock.HolderPID(), err)
		}
		return nil, err
	}
	defer dirLock.Release()

	s.logger.Infow("Starting export session",
		"entities", s.jobConfig.Entities,
		"include_related", s.jobConfig.IncludeRelated,
		"max_depth", s.jobConfig.MaxDepth,
		"concurrency", s.processingCfg.MaxConcurrentExports,
	)

	if err := s.exportRoots(ctx); err != nil {
		return s.finalize(), err
	}

	if s.jobConfig.IncludeRelated {
		if err := s.drainRelatedTasks(ctx); err != nil {
			return s.finalize(), err
		}
	}

	result := s.finalize()
	s.logger.Infow("Export session completed",
		"duration", result.Duration,
		"success", result.Success,
		"entities_exported", result.Stats.EntitiesExported,
		"entities_skipped", result.Stats.EntitiesSkipped,
		"entities_failed", result.Stats.EntitiesFailed,
		"records_exported", result.Stats.RecordsExported,
		"related_tasks", result.Stats.RelatedTasksRun,
	)
	return result, nil
}

// exportRoots runs the job's root entities through the pipeline with bounded
// concurrency, feeding each finished entity's identifiers to the
// relationship orchestrator.
func (s *Service) exportRoots(ctx context.Context) error {
	workers := s.processingCfg.MaxConcurrentExports
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, entity := range s.jobConfig.Entities {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(entity string) {
			defer wg.Done()
			defer func() { <-sem }()

			outcome, err := s.exportEntity(ctx, entity, s.jobConfig.Where, 0)
			if err != nil {
				s.recordFailure(entity, err)
				return
			}
			if outcome == nil {
				return // skipped
			}

			if s.jobConfig.IncludeRelated {
				if err := s.orchestrator.OnParentComplete(ctx, entity, outcome.Identifiers); err != nil {
					s.recordFailure(entity, err)
				}
			}
		}(entity)
	}

	wg.Wait()
	return ctx.Err()
}

// drainRelatedTasks pops queued related tasks until none remain. Tasks are
// exported sequentially: each completion may enqueue deeper tasks.
func (s *Service) drainRelatedTasks(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task := s.orchestrator.Next()
		if task == nil {
			return nil
		}

		log := s.logger.WithEntity(task.Entity)
		log.Infow("Exporting related entity",
			"parent", task.ParentEntity,
			"depth", task.Depth,
			"truncated", task.Truncated,
		)

		outcome, err := s.exportEntity(ctx, task.Entity, task.Where, task.Depth)
		if err != nil {
			s.recordFailure(task.Entity, err)
			continue
		}

		s.mu.Lock()
		s.result.Stats.RelatedTasksRun++
		s.mu.Unlock()

		if outcome == nil {
			continue
		}
		if err := s.orchestrator.OnRelatedComplete(ctx, task, outcome.Identifiers); err != nil {
			s.recordFailure(task.Entity, err)
		}
	}
}

// exportEntity runs one entity through the full pipeline: field resolution,
// job submission, polling, download, sink storage, identifier extraction and
// the optional blob pass. A nil outcome with nil error means the entity was
// skipped.
func (s *Service) exportEntity(ctx context.Context, entity, where string, depth int) (*types.ExportOutcome, error) {
	log := s.logger.WithEntity(entity)
	started := time.Now()

	if bulk.IsKnownUnsupported(entity) {
		log.Infow("Skipping entity unsupported by the bulk protocol")
		s.recordSkip()
		return nil, nil
	}

	plan, err := s.client.ResolveFields(ctx, entity, s.jobConfig.Fields[entity])
	if err != nil {
		var noFields *bulk.NoQueryableFieldsError
		if errors.As(err, &noFields) {
			log.Warnw("Skipping entity without queryable fields")
			s.recordSkip()
			return nil, nil
		}
		return nil, err
	}

	jobID, err := s.client.Submit(ctx, entity, plan.Fields, where, s.jobConfig.RecordLimit)
	if err != nil {
		var rejected *bulk.RemoteRejectedError
		if errors.As(err, &rejected) {
			log.Warnw("Entity rejected by remote, skipping", "reason", rejected.Message)
			s.recordSkip()
			return nil, nil
		}
		return nil, err
	}

	job, err := s.client.AwaitCompletion(ctx, jobID, s.progressFunc(entity))
	if err != nil {
		return nil, err
	}

	outputPath := filepath.Join(s.outputDir, entity+".csv")
	if err := s.downloadTo(ctx, jobID, outputPath); err != nil {
		return nil, err
	}

	rows, err := s.store.Store(ctx, entity, outputPath)
	if err != nil {
		return nil, err
	}

	ids, err := csvutil.ExtractIdentifiersFromFile(outputPath, "Id")
	if err != nil {
		var notFound *csvutil.ColumnNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		ids = types.NewIdentifierSet()
	}

	outcome := &types.ExportOutcome{
		Entity:      entity,
		OutputPath:  outputPath,
		RecordCount: rows,
		Identifiers: ids,
		BlobField:   plan.BlobField,
		Duration:    time.Since(started),
	}

	if plan.HasBlob() && s.jobConfig.FetchBlobs {
		blobDir := filepath.Join(s.outputDir, "blobs", entity)
		blobResult, err := s.fetcher.FetchAll(ctx, entity, plan.BlobField, outputPath, blobDir)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.result.Stats.BlobsDownloaded += blobResult.Downloaded
		s.result.Stats.BlobsSkipped += blobResult.Skipped
		s.result.Stats.BlobsFailed += blobResult.Failed
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.result.Stats.EntitiesExported++
	s.result.Stats.RecordsExported += rows
	s.result.Outcomes = append(s.result.Outcomes, outcome)
	s.mu.Unlock()

	log.Infow("Entity exported",
		"records", rows,
		"depth", depth,
		"duration", outcome.Duration,
		"processed_by_remote", job.RecordsProcessed,
	)
	return outcome, nil
}

// downloadTo streams the job's result chunks into a file at path, creating
// parent directories as needed.
func (s *Service) downloadTo(ctx context.Context, jobID, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := s.client.DownloadResults(ctx, jobID, f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// progressFunc returns a poll-progress callback, with a terminal spinner when
// enabled.
func (s *Service) progressFunc(entity string) bulk.ProgressFunc {
	if !s.showProgress {
		return nil
	}
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription(entity),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowCount(),
	)
	return func(records int64) {
		_ = bar.Set64(records)
	}
}

func (s *Service) recordSkip() {
	s.mu.Lock()
	s.result.Stats.EntitiesSkipped++
	s.mu.Unlock()
}

func (s *Service) recordFailure(entity string, err error) {
	s.logger.Errorw("Entity export failed", "entity", entity, "error", err)
	s.mu.Lock()
	s.result.Stats.EntitiesFailed++
	s.result.Errors = append(s.result.Errors, fmt.Errorf("%s: %w", entity, err))
	s.mu.Unlock()
}

func (s *Service) finalize() *SessionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result.CompletedAt = time.Now()
	s.result.Duration = s.result.CompletedAt.Sub(s.result.StartedAt)
	s.result.Success = len(s.result.Errors) == 0
	return s.result
}
