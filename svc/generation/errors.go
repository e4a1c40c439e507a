package generation

import "errors"

var (
	ErrForbidden           = errors.New("generation: caller is not a member of the organization")
	ErrInsufficientCredits = errors.New("generation: no credits left")
	ErrSubmissionFailed    = errors.New("generation: job submission rejected")
	ErrGenerationFailed    = errors.New("generation: job failed")
	ErrGenerationTimeout   = errors.New("generation: job did not finish in time")
	ErrResultUnavailable   = errors.New("generation: result could not be fetched")
	ErrQueueRequest        = errors.New("generation: queue request failed")
	ErrMissingAPIKey       = errors.New("generation: queue API key is required")
)
