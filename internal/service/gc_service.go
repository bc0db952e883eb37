package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/lock"
	"github.com/harmonium-app/harmonium/internal/metrics"
	"github.com/harmonium-app/harmonium/internal/objectstore"
	"github.com/harmonium-app/harmonium/internal/repository"
)

// GarbageCollector reconciles files whose ref_count reached zero but whose
// purge failed mid-flight: it re-deletes the blob and the record once the
// grace period has passed.
type GarbageCollector struct {
	files   repository.FileRepository
	store   objectstore.Store
	locker  lock.Locker
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  GCConfig

	// Control
	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// GCConfig contains orphan sweep configuration.
type GCConfig struct {
	// Enabled determines if the sweep runs automatically.
	Enabled bool

	// Interval is how often to run the sweep.
	Interval time.Duration

	// GracePeriod is how long to wait before purging an orphan file.
	// Protects uploads that created the file row but have not yet
	// attached a song to it.
	GracePeriod time.Duration

	// BatchSize is the maximum number of files to process per run.
	BatchSize int

	// DryRun logs what would be deleted without actually deleting.
	DryRun bool
}

// DefaultGCConfig returns sensible defaults.
func DefaultGCConfig() GCConfig {
	return GCConfig{
		Enabled:     true,
		Interval:    1 * time.Hour,
		GracePeriod: 24 * time.Hour,
		BatchSize:   1000,
		DryRun:      false,
	}
}

// NewGarbageCollector creates a new orphan file sweeper.
func NewGarbageCollector(
	files repository.FileRepository,
	store objectstore.Store,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config GCConfig,
) *GarbageCollector {
	return &GarbageCollector{
		files:    files,
		store:    store,
		locker:   locker,
		metrics:  m,
		logger:   logger.With().Str("service", "gc").Logger(),
		config:   config,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start begins the sweep scheduler.
func (gc *GarbageCollector) Start() {
	gc.mu.Lock()
	if gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = true
	gc.mu.Unlock()

	gc.logger.Info().
		Dur("interval", gc.config.Interval).
		Dur("grace_period", gc.config.GracePeriod).
		Int("batch_size", gc.config.BatchSize).
		Bool("dry_run", gc.config.DryRun).
		Msg("Starting garbage collector")

	go gc.runLoop()
}

// Stop stops the sweep scheduler.
func (gc *GarbageCollector) Stop() {
	gc.mu.Lock()
	if !gc.running {
		gc.mu.Unlock()
		return
	}
	gc.running = false
	gc.mu.Unlock()

	close(gc.stopChan)
	<-gc.doneChan

	gc.logger.Info().Msg("Garbage collector stopped")
}

// runLoop is the main sweep loop.
func (gc *GarbageCollector) runLoop() {
	defer close(gc.doneChan)

	// Run immediately on start
	gc.runOnce()

	ticker := time.NewTicker(gc.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			gc.runOnce()
		case <-gc.stopChan:
			return
		}
	}
}

// RunOnce executes a single sweep.
// This can be called manually or by the scheduler.
func (gc *GarbageCollector) RunOnce(ctx context.Context) GCResult {
	return gc.runWithContext(ctx)
}

// runOnce is called by the scheduler loop.
func (gc *GarbageCollector) runOnce() {
	ctx := context.Background()
	gc.runWithContext(ctx)
}

// GCResult contains the result of one sweep.
type GCResult struct {
	// FilesDeleted is the number of orphan file records purged.
	FilesDeleted int

	// BytesFreed is the total bytes freed.
	BytesFreed int64

	// Errors is the number of errors encountered.
	Errors int

	// Duration is how long the run took.
	Duration time.Duration

	// OrphansRemaining is the approximate number of orphans still pending.
	OrphansRemaining int
}

// runWithContext executes one sweep with the given context.
func (gc *GarbageCollector) runWithContext(ctx context.Context) GCResult {
	start := time.Now()
	result := GCResult{}

	gc.logger.Debug().Msg("Starting garbage collection run")

	// One sweep across the deployment at a time.
	lockKey := lock.Keys.FileGC()
	lockTTL := gc.config.Interval / 2 // Lock expires before next scheduled run
	if lockTTL < 5*time.Minute {
		lockTTL = 5 * time.Minute
	}

	acquired, err := gc.locker.Acquire(ctx, lockKey, lockTTL)
	if err != nil {
		gc.logger.Error().Err(err).Msg("Failed to acquire GC lock")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}
	if !acquired {
		gc.logger.Debug().Msg("GC lock held by another process, skipping run")
		result.Duration = time.Since(start)
		return result
	}
	defer func() {
		if _, err := gc.locker.Release(ctx, lockKey); err != nil {
			gc.logger.Error().Err(err).Msg("Failed to release GC lock")
		}
	}()

	orphans, err := gc.files.ListOrphans(ctx, gc.config.GracePeriod, gc.config.BatchSize)
	if err != nil {
		gc.logger.Error().Err(err).Msg("Failed to list orphan files")
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	if len(orphans) == 0 {
		gc.logger.Debug().Msg("No orphan files found")
		result.Duration = time.Since(start)
		if gc.metrics != nil {
			gc.metrics.GCLastRunTime.SetToCurrentTime()
		}
		return result
	}

	gc.logger.Info().
		Int("count", len(orphans)).
		Msg("Found orphan files for cleanup")

	if gc.metrics != nil {
		gc.metrics.GCOrphanFiles.Set(float64(len(orphans)))
	}

	for _, file := range orphans {
		if gc.config.DryRun {
			gc.logger.Info().
				Str("file_id", file.ID.String()).
				Str("hash", file.Hash).
				Int64("size", file.Size).
				Msg("[DRY RUN] Would delete orphan file")
			result.FilesDeleted++
			result.BytesFreed += file.Size
			continue
		}

		// Blob first. Delete treats an absent key as success, so a purge
		// that died between blob and record converges here.
		if err := gc.store.Delete(ctx, file.StorageKey); err != nil {
			gc.logger.Error().
				Err(err).
				Str("storage_key", file.StorageKey).
				Msg("Failed to delete blob from object store")
			result.Errors++
			continue
		}

		if err := gc.files.Delete(ctx, file.ID); err != nil {
			gc.logger.Error().
				Err(err).
				Str("file_id", file.ID.String()).
				Msg("Failed to delete orphan file record")
			result.Errors++
			continue
		}

		gc.logger.Debug().
			Str("file_id", file.ID.String()).
			Str("hash", file.Hash).
			Int64("size", file.Size).
			Msg("Deleted orphan file")

		result.FilesDeleted++
		result.BytesFreed += file.Size
	}

	result.Duration = time.Since(start)

	// Check if there might be more orphans
	if len(orphans) == gc.config.BatchSize {
		remaining, _ := gc.files.ListOrphans(ctx, gc.config.GracePeriod, 1)
		result.OrphansRemaining = len(remaining)
		if len(remaining) > 0 {
			gc.logger.Info().Msg("More orphan files remain for next run")
		}
	}

	if gc.metrics != nil {
		gc.metrics.RecordGCRun(result.Duration.Seconds(), result.FilesDeleted, result.BytesFreed)
		gc.metrics.GCLastRunTime.SetToCurrentTime()
		if result.OrphansRemaining == 0 && len(orphans) < gc.config.BatchSize {
			gc.metrics.GCOrphanFiles.Set(0)
		}
	}

	gc.logger.Info().
		Int("files_deleted", result.FilesDeleted).
		Int64("bytes_freed", result.BytesFreed).
		Int("errors", result.Errors).
		Dur("duration", result.Duration).
		Msg("Garbage collection run completed")

	return result
}

// GetStats returns current sweep statistics.
func (gc *GarbageCollector) GetStats(ctx context.Context) (*GCStats, error) {
	orphans, err := gc.files.ListOrphans(ctx, gc.config.GracePeriod, gc.config.BatchSize+1)
	if err != nil {
		return nil, err
	}

	var totalSize int64
	for _, file := range orphans {
		totalSize += file.Size
	}

	hasMore := len(orphans) > gc.config.BatchSize
	if hasMore {
		orphans = orphans[:gc.config.BatchSize]
	}

	return &GCStats{
		OrphanFileCount: len(orphans),
		OrphanFileSize:  totalSize,
		HasMoreOrphans:  hasMore,
		GracePeriod:     gc.config.GracePeriod,
		NextRunIn:       gc.config.Interval,
	}, nil
}

// GCStats contains sweep statistics.
type GCStats struct {
	OrphanFileCount int
	OrphanFileSize  int64
	HasMoreOrphans  bool
	GracePeriod     time.Duration
	NextRunIn       time.Duration
}
