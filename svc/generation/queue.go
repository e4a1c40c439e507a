package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// JobStatus is the queue's view of a job.
type JobStatus string

const (
	StatusInQueue    JobStatus = "IN_QUEUE"
	StatusInProgress JobStatus = "IN_PROGRESS"
	StatusCompleted  JobStatus = "COMPLETED"
	StatusFailed     JobStatus = "FAILED"
)

// Input is the model input for an image edit.
type Input struct {
	Prompt    string   `json:"prompt"`
	ImageURLs []string `json:"image_urls"`
}

// Output is the finished job's first image.
type Output struct {
	URL         string
	ContentType string
}

// Asset is a downloaded result. The caller closes Body.
type Asset struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Job identifies a submitted request. StatusURL and ResponseURL are the
// locations the queue returned on submit; empty values fall back to URLs
// derived from the request id.
type Job struct {
	RequestID   string
	StatusURL   string
	ResponseURL string
}

// Queue is the asynchronous image generation API.
type Queue interface {
	Submit(ctx context.Context, in Input) (Job, error)
	Status(ctx context.Context, job Job) (JobStatus, error)
	Result(ctx context.Context, job Job) (*Output, error)
	Download(ctx context.Context, assetURL string) (*Asset, error)
}

// QueueConfig is read from the environment.
type QueueConfig struct {
	APIKey         string        `env:"FAL_KEY,required"`
	BaseURL        string        `env:"FAL_QUEUE_URL" envDefault:"https://queue.fal.run"`
	Model          string        `env:"FAL_MODEL" envDefault:"fal-ai/nano-banana/edit"`
	RequestTimeout time.Duration `env:"FAL_REQUEST_TIMEOUT" envDefault:"30s"`
}

// HTTPQueue talks to a fal-style queue REST API.
type HTTPQueue struct {
	client  *http.Client
	baseURL string
	model   string
	apiKey  string
}

// NewHTTPQueue builds a queue client. A nil client gets a pooled transport
// with cfg.RequestTimeout.
func NewHTTPQueue(cfg QueueConfig, client *http.Client) (*HTTPQueue, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if client == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPQueue{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   strings.Trim(cfg.Model, "/"),
		apiKey:  cfg.APIKey,
	}, nil
}

// Submit enqueues a job and returns its handle.
func (q *HTTPQueue) Submit(ctx context.Context, in Input) (Job, error) {
	var resp struct {
		RequestID   string `json:"request_id"`
		StatusURL   string `json:"status_url"`
		ResponseURL string `json:"response_url"`
	}
	if err := q.do(ctx, http.MethodPost, q.baseURL+"/"+q.model, in, &resp); err != nil {
		return Job{}, err
	}
	if resp.RequestID == "" {
		return Job{}, fmt.Errorf("%w: response has no request_id", ErrQueueRequest)
	}
	return Job{RequestID: resp.RequestID, StatusURL: resp.StatusURL, ResponseURL: resp.ResponseURL}, nil
}

// Status reports the job state, normalised to upper case.
func (q *HTTPQueue) Status(ctx context.Context, job Job) (JobStatus, error) {
	endpoint := job.StatusURL
	if endpoint == "" {
		endpoint = q.requestURL(job.RequestID) + "/status"
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := q.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return "", err
	}
	return JobStatus(strings.ToUpper(resp.Status)), nil
}

// Result returns the first image of a completed job.
func (q *HTTPQueue) Result(ctx context.Context, job Job) (*Output, error) {
	endpoint := job.ResponseURL
	if endpoint == "" {
		endpoint = q.requestURL(job.RequestID)
	}

	var resp struct {
		Images []struct {
			URL         string `json:"url"`
			ContentType string `json:"content_type"`
		} `json:"images"`
	}
	if err := q.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Images) == 0 || resp.Images[0].URL == "" {
		return nil, fmt.Errorf("%w: result has no images", ErrQueueRequest)
	}
	return &Output{URL: resp.Images[0].URL, ContentType: resp.Images[0].ContentType}, nil
}

// Download fetches a result asset. It sends no credentials.
func (q *HTTPQueue) Download(ctx context.Context, assetURL string) (*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, assetURL, nil)
	if err != nil {
		return nil, errors.Join(ErrQueueRequest, err)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrQueueRequest, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("%w: download returned %d", ErrQueueRequest, resp.StatusCode)
	}
	return &Asset{Body: resp.Body, ContentType: resp.Header.Get("Content-Type"), Size: resp.ContentLength}, nil
}

// requestURL addresses a request under the app id (owner/app); model
// sub-paths such as "/edit" are not part of queue request paths.
func (q *HTTPQueue) requestURL(requestID string) string {
	return q.baseURL + "/" + appID(q.model) + "/requests/" + url.PathEscape(requestID)
}

func appID(model string) string {
	parts := strings.SplitN(model, "/", 3)
	if len(parts) < 2 {
		return model
	}
	return parts[0] + "/" + parts[1]
}

func (q *HTTPQueue) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Join(ErrQueueRequest, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return errors.Join(ErrQueueRequest, err)
	}
	req.Header.Set("Authorization", "Key "+q.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := q.client.Do(req)
	if err != nil {
		return errors.Join(ErrQueueRequest, err)
	}
	defer resp.Body.Close()

	// COMPLETED status polls answer 200; queued ones answer 202.
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrQueueRequest, method, endpoint, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Join(ErrQueueRequest, err)
	}
	return nil
}
