// Package generation runs paid image generation jobs against the AI queue:
// one credit per request, a bounded status poll, and a copy of the result
// into object storage.
package generation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/dmitrymomot/creatorkit/pkg/file"
	"github.com/dmitrymomot/creatorkit/pkg/logger"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

const (
	MaxPromptLength = 2000
	MaxImageURLs    = 4
)

// Metric outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
)

// Config controls the poll budget.
type Config struct {
	PollInterval    time.Duration `env:"GENERATION_POLL_INTERVAL" envDefault:"2s"`
	MaxPollAttempts int           `env:"GENERATION_MAX_POLL_ATTEMPTS" envDefault:"60"`
	StoragePrefix   string        `env:"GENERATION_STORAGE_PREFIX" envDefault:"generated"`
}

// Store is the organization persistence generation needs.
type Store interface {
	IsMember(ctx context.Context, orgID uuid.UUID, userID string) (bool, error)
	DecrementCredit(ctx context.Context, orgID uuid.UUID) (int, error)
	InsertImage(ctx context.Context, img *organization.Image) error
}

// Storage keeps a durable copy of results.
type Storage interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (*file.Object, error)
}

// Recorder receives generation metrics; *metrics.Metrics implements it.
type Recorder interface {
	CreditConsumed()
	GenerationFinished(outcome string, attempts int, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CreditConsumed()                               {}
func (nopRecorder) GenerationFinished(string, int, time.Duration) {}

// Progress is reported after every status request.
type Progress struct {
	RequestID   string
	Attempt     int
	MaxAttempts int
	Status      JobStatus
}

// ProgressFunc receives every status read. It runs on the polling goroutine.
type ProgressFunc func(Progress)

// Request is one paid generation on behalf of a member.
type Request struct {
	OrganizationID uuid.UUID
	UserID         string
	Prompt         string
	ImageURLs      []string
	OnProgress     ProgressFunc
}

// Validate checks the prompt and reference image URLs.
func (r Request) Validate() error {
	return validator.Apply(
		validator.RequiredString("prompt", r.Prompt),
		validator.MaxLenString("prompt", r.Prompt, MaxPromptLength),
		validator.RequiredSlice("image_urls", r.ImageURLs),
		validator.MaxLenSlice("image_urls", r.ImageURLs, MaxImageURLs),
		validator.HTTPURLs("image_urls", r.ImageURLs),
	)
}

// Result is a finished generation. URL points at object storage when the
// copy succeeded, otherwise at the provider asset.
type Result struct {
	URL       string
	RequestID string
	Credits   int
	ImageID   uuid.UUID
}

// Service spends a credit, submits the job and polls it to completion.
type Service struct {
	store    Store
	queue    Queue
	storage  Storage
	recorder Recorder
	cfg      Config
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithStorage enables copying results into object storage.
func WithStorage(s Storage) Option {
	return func(svc *Service) { svc.storage = s }
}

// WithRecorder reports credit use and generation outcomes.
func WithRecorder(r Recorder) Option {
	return func(svc *Service) {
		if r != nil {
			svc.recorder = r
		}
	}
}

// WithLogger sets the logger. Nil is ignored.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewService panics when store or queue is nil.
func NewService(store Store, queue Queue, cfg Config, opts ...Option) *Service {
	if store == nil || queue == nil {
		panic("generation: store and queue are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 60
	}
	if cfg.StoragePrefix == "" {
		cfg.StoragePrefix = "generated"
	}
	s := &Service{
		store:    store,
		queue:    queue,
		recorder: nopRecorder{},
		cfg:      cfg,
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("generation"))
	return s
}

var errStillRunning = errors.New("job still running")

// Generate consumes one credit and returns the finished image. The credit is
// not refunded when the job fails or times out.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, req.OrganizationID, req.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, ErrForbidden
	}

	credits, err := s.store.DecrementCredit(ctx, req.OrganizationID)
	if err != nil {
		if errors.Is(err, organization.ErrInsufficientCredits) {
			return nil, ErrInsufficientCredits
		}
		return nil, err
	}
	s.recorder.CreditConsumed()

	log := s.logger.With(logger.OrganizationID(req.OrganizationID), logger.UserID(req.UserID))
	start := time.Now()

	job, err := s.queue.Submit(ctx, Input{Prompt: req.Prompt, ImageURLs: req.ImageURLs})
	if err != nil {
		s.recorder.GenerationFinished(OutcomeRejected, 0, time.Since(start))
		log.ErrorContext(ctx, "generation submission failed", logger.Error(err))
		return nil, errors.Join(ErrSubmissionFailed, err)
	}
	requestID := job.RequestID
	log = log.With(logger.JobID(requestID))

	attempts, err := s.poll(ctx, job, req.OnProgress)
	elapsed := time.Since(start)
	if err != nil {
		outcome := OutcomeFailed
		if errors.Is(err, ErrGenerationTimeout) {
			outcome = OutcomeTimeout
		}
		s.recorder.GenerationFinished(outcome, attempts, elapsed)
		log.WarnContext(ctx, "generation did not complete",
			logger.Attempt(attempts), logger.Duration(elapsed), logger.Error(err))
		return nil, err
	}

	out, err := s.queue.Result(ctx, job)
	if err != nil {
		s.recorder.GenerationFinished(OutcomeFailed, attempts, elapsed)
		log.ErrorContext(ctx, "generation result unavailable", logger.Error(err))
		return nil, errors.Join(ErrResultUnavailable, err)
	}
	s.recorder.GenerationFinished(OutcomeSucceeded, attempts, elapsed)

	img := s.persist(ctx, log, req, requestID, out)
	log.InfoContext(ctx, "generation completed",
		logger.Attempt(attempts), logger.Duration(elapsed), slog.Int("credits_left", credits))

	return &Result{URL: img.URL, RequestID: requestID, Credits: credits, ImageID: img.ID}, nil
}

// poll issues at most MaxPollAttempts sequential status requests spaced by
// PollInterval. Status request errors count against the budget.
func (s *Service) poll(ctx context.Context, job Job, onProgress ProgressFunc) (int, error) {
	backoff := retry.WithMaxRetries(uint64(s.cfg.MaxPollAttempts-1), retry.NewConstant(s.cfg.PollInterval))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		status, err := s.queue.Status(ctx, job)
		if err != nil {
			s.logger.WarnContext(ctx, "generation status request failed",
				logger.JobID(job.RequestID), logger.Attempt(attempts), logger.Error(err))
			return retry.RetryableError(err)
		}

		if onProgress != nil {
			onProgress(Progress{
				RequestID:   job.RequestID,
				Attempt:     attempts,
				MaxAttempts: s.cfg.MaxPollAttempts,
				Status:      status,
			})
		}

		switch status {
		case StatusCompleted:
			return nil
		case StatusFailed:
			return ErrGenerationFailed
		default:
			return retry.RetryableError(errStillRunning)
		}
	})

	switch {
	case err == nil:
		return attempts, nil
	case errors.Is(err, ErrGenerationFailed):
		return attempts, err
	case ctx.Err() != nil:
		return attempts, ctx.Err()
	default:
		return attempts, errors.Join(ErrGenerationTimeout, err)
	}
}

// persist copies the result into storage and records the image. Failures are
// logged; the returned image always carries a usable URL.
func (s *Service) persist(ctx context.Context, log *slog.Logger, req Request, requestID string, out *Output) *organization.Image {
	orgID := req.OrganizationID
	img := &organization.Image{
		ID:             uuid.New(),
		OrganizationID: &orgID,
		URL:            out.URL,
		Source:         organization.ImageSourceAI,
		Prompt:         req.Prompt,
		Metadata: organization.ImageMetadata{
			RequestID:       requestID,
			ReferenceImages: req.ImageURLs,
		},
	}

	if s.storage != nil {
		if obj, err := s.copyAsset(ctx, orgID, out); err != nil {
			log.WarnContext(ctx, "generated image not copied to storage", logger.Error(err))
		} else {
			img.URL = obj.URL
			img.StoragePath = obj.Key
		}
	}

	if err := s.store.InsertImage(ctx, img); err != nil {
		log.ErrorContext(ctx, "generated image not recorded", logger.Error(err))
	}
	return img
}

func (s *Service) copyAsset(ctx context.Context, orgID uuid.UUID, out *Output) (*file.Object, error) {
	asset, err := s.queue.Download(ctx, out.URL)
	if err != nil {
		return nil, err
	}
	defer asset.Body.Close()

	contentType := asset.ContentType
	if contentType == "" {
		contentType = out.ContentType
	}
	key := file.NewObjectKey(s.cfg.StoragePrefix+"/"+orgID.String(), file.ExtensionFor(contentType, out.URL))
	return s.storage.Put(ctx, key, asset.Body, asset.Size, contentType)
}
