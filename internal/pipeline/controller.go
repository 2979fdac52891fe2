// Package pipeline turns a question into validated SQL and runs it.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/querypilot/querypilot/internal/extract"
	"github.com/querypilot/querypilot/internal/inference"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/prompt"
	"github.com/querypilot/querypilot/internal/schema"
	"github.com/querypilot/querypilot/internal/sqlcheck"
)

const (
	ConversionFailedKind = "ConversionFailed"
	DefaultMaxAttempts   = 3
)

type State string

const (
	StateBuilding   State = "building"
	StateInferring  State = "inferring"
	StateExtracting State = "extracting"
	StateValidating State = "validating"
	StateSucceeded  State = "succeeded"
	StateRetrying   State = "retrying"
	StateExhausted  State = "exhausted"
)

// ConversionFailed ends a request whose every attempt produced invalid
// SQL. Last is the failure of the final attempt.
type ConversionFailed struct {
	Attempts int
	Last     *sqlcheck.Failure
}

func (e *ConversionFailed) Error() string {
	return fmt.Sprintf("no valid SQL after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConversionFailed) Unwrap() error {
	return e.Last
}

// Request is one question plus the prior turns it may refer to.
type Request struct {
	ID       string
	Question string
	Turns    []prompt.Turn
}

type Outcome struct {
	SQL      string
	Attempts int
}

type ControllerConfig struct {
	MaxAttempts int
	Logger      *slog.Logger
	// OnState, when set, sees every state the controller enters.
	OnState func(state State, attempt int)
}

// Controller drives build, infer, extract and validate until the SQL is
// valid or the attempts run out. The adapter is shared between requests;
// wrap it in inference.Serial to keep one call in flight.
type Controller struct {
	builder     *prompt.Builder
	adapter     inference.Adapter
	maxAttempts int
	logger      *slog.Logger
	onState     func(State, int)
}

func NewController(builder *prompt.Builder, adapter inference.Adapter, cfg ControllerConfig) (*Controller, error) {
	if builder == nil {
		return nil, fmt.Errorf("prompt builder is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("inference adapter is required")
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Controller{
		builder:     builder,
		adapter:     adapter,
		maxAttempts: maxAttempts,
		logger:      logger,
		onState:     cfg.OnState,
	}, nil
}

func (c *Controller) MaxAttempts() int {
	return c.maxAttempts
}

// Run converts the request against model. Inference errors end the run
// at once; validation failures are fed into the next prompt.
func (c *Controller) Run(ctx context.Context, model *schema.Model, req Request) (Outcome, error) {
	var prior *sqlcheck.Failure
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return Outcome{Attempts: attempt}, fmt.Errorf("conversion abandoned after %d attempts: %w", attempt, err)
		}

		c.enter(StateBuilding, attempt+1)
		text, err := c.builder.Build(model, req.Question, req.Turns, prior)
		if err != nil {
			return Outcome{Attempts: attempt}, fmt.Errorf("build prompt: %w", err)
		}

		c.enter(StateInferring, attempt+1)
		raw, err := c.adapter.Infer(ctx, text)
		if err != nil {
			return Outcome{Attempts: attempt}, err
		}

		c.enter(StateExtracting, attempt+1)
		candidate := extract.Extract(raw)

		c.enter(StateValidating, attempt+1)
		result := sqlcheck.Validate(candidate, model)
		attempt++

		if result.Valid() {
			c.enter(StateSucceeded, attempt)
			return Outcome{SQL: result.SQL, Attempts: attempt}, nil
		}

		prior = result.Failure
		observability.IncrementValidationFailure(string(prior.Reason))
		c.logger.WarnContext(ctx, "conversion_attempt",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("principal", observability.PrincipalFromContext(ctx)),
			slog.String("request_id", req.ID),
			slog.Int("attempt", attempt),
			slog.String("confidence", string(candidate.Confidence)),
			slog.String("reason", string(prior.Reason)),
			slog.String("identifier", prior.Identifier()),
		)

		if attempt >= c.maxAttempts {
			c.enter(StateExhausted, attempt)
			return Outcome{Attempts: attempt}, &ConversionFailed{Attempts: attempt, Last: prior}
		}
		c.enter(StateRetrying, attempt)
	}
}

func (c *Controller) enter(state State, attempt int) {
	if c.onState != nil {
		c.onState(state, attempt)
	}
}
