package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonium-app/harmonium/internal/domain"
	"github.com/harmonium-app/harmonium/internal/lock"
	"github.com/harmonium-app/harmonium/internal/metrics"
	"github.com/harmonium-app/harmonium/internal/objectstore"
	"github.com/harmonium-app/harmonium/internal/pkg/hash"
	"github.com/harmonium-app/harmonium/internal/repository"
	"github.com/harmonium-app/harmonium/internal/tags"
)

// UploadInput describes one incoming audio file.
type UploadInput struct {
	// Filename is the client-supplied name, used for heuristic tag fallback.
	Filename string

	// MimeType is the declared content type.
	MimeType string

	// Content is the raw file bytes.
	Content []byte
}

// UploadOutput is the result of an upload.
type UploadOutput struct {
	// FileID identifies the canonical file record, new or pre-existing.
	FileID uuid.UUID

	// Hash is the SHA-256 content hash.
	Hash string

	// IsNewFile is false when the content deduplicated against an existing
	// file, in which case no bytes were written to the object store.
	IsNewFile bool

	// Size is the content length in bytes.
	Size int64

	// Properties are the audio properties of the stored file.
	Properties tags.Properties

	// SuggestedTags are best-effort metadata suggestions for the caller to
	// seed a song record with. Never the reason an upload fails.
	SuggestedTags tags.Tags
}

// UploadConfig contains upload handling settings.
type UploadConfig struct {
	// MaxFileSize is the largest accepted file in bytes. Zero disables the check.
	MaxFileSize int64

	// LockTTL bounds how long an upload holds its per-hash lock.
	LockTTL time.Duration
}

// UploadService stores audio content once per unique byte sequence.
type UploadService struct {
	files     repository.FileRepository
	store     objectstore.Store
	extractor tags.Extractor
	locker    lock.Locker
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	config    UploadConfig
}

// NewUploadService creates a new upload service. extractor may be nil, in
// which case only the filename heuristics produce tag suggestions.
func NewUploadService(
	files repository.FileRepository,
	store objectstore.Store,
	extractor tags.Extractor,
	locker lock.Locker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config UploadConfig,
) *UploadService {
	return &UploadService{
		files:     files,
		store:     store,
		extractor: extractor,
		locker:    locker,
		metrics:   m,
		logger:    logger.With().Str("service", "upload").Logger(),
		config:    config,
	}
}

// Upload stores the content and returns the canonical file record for it.
// Identical bytes always resolve to the same file: the existing record's
// ref_count is incremented instead of storing a second copy.
func (s *UploadService) Upload(ctx context.Context, input UploadInput) (*UploadOutput, error) {
	start := time.Now()

	if len(input.Content) == 0 {
		return nil, ErrEmptyUpload
	}
	if s.config.MaxFileSize > 0 && int64(len(input.Content)) > s.config.MaxFileSize {
		return nil, ErrUploadTooLarge
	}

	contentHash := hash.Bytes(input.Content)
	size := int64(len(input.Content))
	logger := s.logger.With().Str("hash", contentHash).Logger()

	// Serialize concurrent uploads of the same bytes. The blob write is
	// idempotent and the row upsert is atomic, so failing to get the lock
	// only risks a redundant object store write.
	lockKey := lock.Keys.FileUpload(contentHash)
	if acquired, err := s.locker.Acquire(ctx, lockKey, s.lockTTL()); err != nil {
		logger.Warn().Err(err).Msg("failed to acquire upload lock, continuing")
	} else if acquired {
		defer func() {
			if _, err := s.locker.Release(ctx, lockKey); err != nil {
				logger.Warn().Err(err).Msg("failed to release upload lock")
			}
		}()
	}

	// Tag extraction is best-effort and feeds both the file row's audio
	// properties and the caller's song-seeding suggestions.
	result := s.extract(ctx, input)

	// Fast path: content already known, bump the reference count atomically.
	existing, err := s.files.IncrementRefByHash(ctx, contentHash)
	if err == nil {
		logger.Debug().
			Str("file_id", existing.ID.String()).
			Int32("ref_count", existing.RefCount).
			Msg("upload deduplicated")
		output := s.outputFor(existing, false, result)
		s.record(false, size, start)
		return output, nil
	}
	if !errors.Is(err, domain.ErrFileNotFound) {
		return nil, fmt.Errorf("failed to look up file by hash: %w", err)
	}

	storageKey := domain.StorageKeyFor(contentHash, input.MimeType)
	if err := s.store.Put(ctx, storageKey, bytes.NewReader(input.Content), size, input.MimeType); err != nil {
		return nil, fmt.Errorf("failed to store content: %w", err)
	}

	file := domain.NewFile(contentHash, input.MimeType, size)
	file.Duration = result.Properties.Duration
	file.Bitrate = result.Properties.Bitrate
	file.SampleRate = result.Properties.SampleRate
	file.ChannelCount = result.Properties.ChannelCount

	// The upsert absorbs the race where another upload of the same bytes
	// landed between the lookup above and now: that upload's row wins and
	// our blob write was a no-op on the same key.
	stored, isNew, err := s.files.Upsert(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert file: %w", err)
	}

	if isNew {
		logger.Info().
			Str("file_id", stored.ID.String()).
			Int64("size", size).
			Str("mime_type", input.MimeType).
			Msg("stored new file")
	} else {
		logger.Debug().
			Str("file_id", stored.ID.String()).
			Int32("ref_count", stored.RefCount).
			Msg("upload deduplicated on insert")
	}

	output := s.outputFor(stored, isNew, result)
	s.record(isNew, size, start)
	return output, nil
}

// extract runs tag extraction, falling back to filename heuristics for
// whatever the extractor left blank. Never returns an error: extraction
// failure degrades to heuristics only.
func (s *UploadService) extract(ctx context.Context, input UploadInput) *tags.Result {
	var result *tags.Result
	if s.extractor != nil {
		extracted, err := s.extractor.Extract(ctx, input.Content, input.MimeType)
		if err != nil {
			s.logger.Warn().Err(err).Str("filename", input.Filename).Msg("tag extraction failed, using filename heuristics")
		} else {
			result = extracted
		}
	}
	if result == nil {
		result = &tags.Result{}
	}

	guessed := tags.FromFilename(input.Filename)
	if result.Tags.Title == "" {
		result.Tags.Title = guessed.Title
	}
	if result.Tags.Artist == "" {
		result.Tags.Artist = guessed.Artist
	}
	if result.Tags.TrackNumber == 0 {
		result.Tags.TrackNumber = guessed.TrackNumber
	}

	return result
}

func (s *UploadService) outputFor(file *domain.File, isNew bool, result *tags.Result) *UploadOutput {
	return &UploadOutput{
		FileID:    file.ID,
		Hash:      file.Hash,
		IsNewFile: isNew,
		Size:      file.Size,
		Properties: tags.Properties{
			Duration:     file.Duration,
			Bitrate:      file.Bitrate,
			SampleRate:   file.SampleRate,
			ChannelCount: file.ChannelCount,
		},
		SuggestedTags: result.Tags,
	}
}

func (s *UploadService) lockTTL() time.Duration {
	if s.config.LockTTL > 0 {
		return s.config.LockTTL
	}
	return 2 * time.Minute
}

func (s *UploadService) record(isNew bool, size int64, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordUpload(isNew, size, time.Since(start).Seconds())
	}
}
