package generation_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/creatorkit/pkg/file"
	"github.com/dmitrymomot/creatorkit/pkg/validator"
	"github.com/dmitrymomot/creatorkit/svc/generation"
	"github.com/dmitrymomot/creatorkit/svc/organization"
)

type fakeStore struct {
	mu      sync.Mutex
	credits int
	members map[string]bool
	images  []*organization.Image
	imgErr  error
}

func (s *fakeStore) IsMember(_ context.Context, _ uuid.UUID, userID string) (bool, error) {
	return s.members[userID], nil
}

func (s *fakeStore) DecrementCredit(_ context.Context, _ uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credits <= 0 {
		return 0, organization.ErrInsufficientCredits
	}
	s.credits--
	return s.credits, nil
}

func (s *fakeStore) InsertImage(_ context.Context, img *organization.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.imgErr != nil {
		return s.imgErr
	}
	s.images = append(s.images, img)
	return nil
}

type fakeQueue struct {
	mu          sync.Mutex
	submitErr   error
	statuses    []generation.JobStatus
	statusCalls int
	submits     int
	output      *generation.Output
}

func (q *fakeQueue) Submit(context.Context, generation.Input) (generation.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.submits++
	if q.submitErr != nil {
		return generation.Job{}, q.submitErr
	}
	return generation.Job{RequestID: "req-1"}, nil
}

// Status replays statuses and repeats the last one.
func (q *fakeQueue) Status(context.Context, generation.Job) (generation.JobStatus, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := min(q.statusCalls, len(q.statuses)-1)
	q.statusCalls++
	return q.statuses[i], nil
}

func (q *fakeQueue) Result(context.Context, generation.Job) (*generation.Output, error) {
	return q.output, nil
}

func (q *fakeQueue) Download(context.Context, string) (*generation.Asset, error) {
	return &generation.Asset{
		Body:        io.NopCloser(strings.NewReader("png-bytes")),
		ContentType: "image/png",
		Size:        9,
	}, nil
}

type fakeStorage struct {
	err  error
	keys []string
}

func (s *fakeStorage) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (*file.Object, error) {
	if s.err != nil {
		return nil, s.err
	}
	if _, err := io.Copy(io.Discard, body); err != nil {
		return nil, err
	}
	s.keys = append(s.keys, key)
	return &file.Object{Key: key, URL: "https://cdn.example.com/" + key, ContentType: contentType, Size: size}, nil
}

var testConfig = generation.Config{
	PollInterval:    time.Millisecond,
	MaxPollAttempts: 60,
	StoragePrefix:   "generated",
}

func validRequest(orgID uuid.UUID) generation.Request {
	return generation.Request{
		OrganizationID: orgID,
		UserID:         "user-1",
		Prompt:         "a watercolor fox",
		ImageURLs:      []string{"https://example.com/ref.png"},
	}
}

func TestService_Generate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("success consumes one credit and records one image", func(t *testing.T) {
		t.Parallel()
		orgID := uuid.New()
		store := &fakeStore{credits: 3, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{
			statuses: []generation.JobStatus{generation.StatusInQueue, generation.StatusInProgress, generation.StatusCompleted},
			output:   &generation.Output{URL: "https://fal.media/out.png", ContentType: "image/png"},
		}
		storage := &fakeStorage{}

		var progress []generation.Progress
		req := validRequest(orgID)
		req.OnProgress = func(p generation.Progress) { progress = append(progress, p) }

		res, err := generation.NewService(store, queue, testConfig, generation.WithStorage(storage)).Generate(ctx, req)
		require.NoError(t, err)

		assert.Equal(t, 2, res.Credits)
		assert.Equal(t, "req-1", res.RequestID)
		require.Len(t, storage.keys, 1)
		assert.True(t, strings.HasPrefix(storage.keys[0], "generated/"+orgID.String()+"/"))
		assert.True(t, strings.HasSuffix(storage.keys[0], ".png"))
		assert.Equal(t, "https://cdn.example.com/"+storage.keys[0], res.URL)

		require.Len(t, store.images, 1)
		img := store.images[0]
		assert.Equal(t, organization.ImageSourceAI, img.Source)
		assert.Equal(t, "req-1", img.Metadata.RequestID)
		assert.Equal(t, req.ImageURLs, img.Metadata.ReferenceImages)
		assert.Equal(t, storage.keys[0], img.StoragePath)
		assert.Equal(t, res.ImageID, img.ID)

		require.Len(t, progress, 3)
		assert.Equal(t, generation.StatusCompleted, progress[2].Status)
		assert.Equal(t, 3, progress[2].Attempt)
	})

	t.Run("zero credits never calls the queue", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 0, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{statuses: []generation.JobStatus{generation.StatusCompleted}}

		_, err := generation.NewService(store, queue, testConfig).Generate(ctx, validRequest(uuid.New()))
		assert.ErrorIs(t, err, generation.ErrInsufficientCredits)
		assert.Equal(t, 0, queue.submits)
		assert.Equal(t, 0, queue.statusCalls)
	})

	t.Run("times out after the poll budget", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 1, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{statuses: []generation.JobStatus{generation.StatusInProgress}}

		_, err := generation.NewService(store, queue, testConfig).Generate(ctx, validRequest(uuid.New()))
		assert.ErrorIs(t, err, generation.ErrGenerationTimeout)
		assert.Equal(t, 60, queue.statusCalls)
		assert.Equal(t, 0, store.credits)
		assert.Empty(t, store.images)
	})

	t.Run("failed job", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 2, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{statuses: []generation.JobStatus{generation.StatusInQueue, generation.StatusFailed}}

		_, err := generation.NewService(store, queue, testConfig).Generate(ctx, validRequest(uuid.New()))
		assert.ErrorIs(t, err, generation.ErrGenerationFailed)
		assert.Equal(t, 2, queue.statusCalls)
		assert.Equal(t, 1, store.credits)
	})

	t.Run("submission rejected keeps the credit consumed", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 2, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{submitErr: errors.New("422 unprocessable")}

		_, err := generation.NewService(store, queue, testConfig).Generate(ctx, validRequest(uuid.New()))
		assert.ErrorIs(t, err, generation.ErrSubmissionFailed)
		assert.Equal(t, 1, store.credits)
		assert.Equal(t, 0, queue.statusCalls)
	})

	t.Run("storage and insert failures still return the provider url", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 1, members: map[string]bool{"user-1": true}, imgErr: errors.New("db down")}
		queue := &fakeQueue{
			statuses: []generation.JobStatus{generation.StatusCompleted},
			output:   &generation.Output{URL: "https://fal.media/out.png"},
		}

		res, err := generation.NewService(store, queue, testConfig,
			generation.WithStorage(&fakeStorage{err: file.ErrServiceUnavailable}),
		).Generate(ctx, validRequest(uuid.New()))
		require.NoError(t, err)
		assert.Equal(t, "https://fal.media/out.png", res.URL)
		assert.Equal(t, 0, res.Credits)
	})

	t.Run("non member", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 5, members: map[string]bool{}}
		queue := &fakeQueue{}

		_, err := generation.NewService(store, queue, testConfig).Generate(ctx, validRequest(uuid.New()))
		assert.ErrorIs(t, err, generation.ErrForbidden)
		assert.Equal(t, 5, store.credits)
	})

	t.Run("invalid request", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 5, members: map[string]bool{"user-1": true}}
		req := validRequest(uuid.New())
		req.Prompt = ""
		req.ImageURLs = []string{"ftp://example.com/a.png"}

		_, err := generation.NewService(store, &fakeQueue{}, testConfig).Generate(ctx, req)
		var ve validator.ValidationErrors
		require.ErrorAs(t, err, &ve)
		assert.True(t, ve.Has("prompt"))
		assert.True(t, ve.Has("image_urls"))
		assert.Equal(t, 5, store.credits)
	})

	t.Run("cancelled context stops polling", func(t *testing.T) {
		t.Parallel()
		store := &fakeStore{credits: 1, members: map[string]bool{"user-1": true}}
		queue := &fakeQueue{statuses: []generation.JobStatus{generation.StatusInProgress}}
		cctx, cancel := context.WithCancel(ctx)

		req := validRequest(uuid.New())
		req.OnProgress = func(p generation.Progress) {
			if p.Attempt == 3 {
				cancel()
			}
		}
		cfg := testConfig
		cfg.PollInterval = 50 * time.Millisecond

		_, err := generation.NewService(store, queue, cfg).Generate(cctx, req)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 3, queue.statusCalls)
	})
}
