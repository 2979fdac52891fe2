package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/querypilot/querypilot/internal/execute"
	"github.com/querypilot/querypilot/internal/inference"
	"github.com/querypilot/querypilot/internal/observability"
	"github.com/querypilot/querypilot/internal/prompt"
	"github.com/querypilot/querypilot/internal/schema"
)

const (
	DefaultRowLimit     = 1000
	DefaultHistoryLimit = 5
)

// ErrEmptyQuestion rejects a blank question before any work is done.
var ErrEmptyQuestion = errors.New("question is required")

type Executor interface {
	Execute(ctx context.Context, sqlText string, rowLimit int) (execute.Result, error)
}

type Response struct {
	Question string         `json:"question"`
	SQL      string         `json:"sql"`
	Result   execute.Result `json:"result"`
	Summary  string         `json:"summary"`
	Attempts int            `json:"attempts"`
}

type ConverterConfig struct {
	RowLimit     int
	HistoryLimit int
	Logger       *slog.Logger
}

// Converter is the entry point for one question: schema lookup, the retry
// controller, execution and the summary line.
type Converter struct {
	schemas      *schema.Cache
	controller   *Controller
	executor     Executor
	rowLimit     int
	historyLimit int
	logger       *slog.Logger
}

func NewConverter(schemas *schema.Cache, controller *Controller, executor Executor, cfg ConverterConfig) (*Converter, error) {
	if schemas == nil {
		return nil, fmt.Errorf("schema cache is required")
	}
	if controller == nil {
		return nil, fmt.Errorf("controller is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	rowLimit := cfg.RowLimit
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit < 0 {
		historyLimit = DefaultHistoryLimit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Converter{
		schemas:      schemas,
		controller:   controller,
		executor:     executor,
		rowLimit:     rowLimit,
		historyLimit: historyLimit,
		logger:       logger,
	}, nil
}

// Schema returns the current schema snapshot.
func (c *Converter) Schema(ctx context.Context) (*schema.Model, error) {
	model, status, err := c.schemas.Get(ctx)
	if err != nil {
		return nil, err
	}
	observability.IncrementSchemaCache(string(status))
	return model, nil
}

// Convert answers question. Only the newest turns of history, up to the
// configured limit, reach the prompt.
func (c *Converter) Convert(ctx context.Context, question string, history []prompt.Turn) (Response, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Response{}, ErrEmptyQuestion
	}

	model, err := c.Schema(ctx)
	if err != nil {
		observability.ObserveConversion("introspection_error", 0)
		return Response{}, err
	}

	req := Request{
		ID:       uuid.NewString(),
		Question: question,
		Turns:    boundTurns(history, c.historyLimit),
	}
	outcome, err := c.controller.Run(ctx, model, req)
	if err != nil {
		c.fail(ctx, req, outcome.Attempts, err)
		return Response{Question: question, Attempts: outcome.Attempts}, err
	}

	result, err := c.executor.Execute(ctx, outcome.SQL, c.rowLimit)
	if err != nil {
		c.fail(ctx, req, outcome.Attempts, err)
		return Response{Question: question, SQL: outcome.SQL, Attempts: outcome.Attempts}, err
	}

	observability.ObserveConversion("succeeded", outcome.Attempts)
	c.logger.InfoContext(ctx, "conversion_succeeded",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("principal", observability.PrincipalFromContext(ctx)),
		slog.String("request_id", req.ID),
		slog.Int("attempts", outcome.Attempts),
		slog.Int("rows", result.RowCount),
		slog.Bool("truncated", result.Truncated),
	)
	return Response{
		Question: question,
		SQL:      outcome.SQL,
		Result:   result,
		Summary:  Summarize(question, result),
		Attempts: outcome.Attempts,
	}, nil
}

func (c *Converter) fail(ctx context.Context, req Request, attempts int, err error) {
	outcome := outcomeLabel(err)
	observability.ObserveConversion(outcome, attempts)
	c.logger.WarnContext(ctx, "conversion_failed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("principal", observability.PrincipalFromContext(ctx)),
		slog.String("request_id", req.ID),
		slog.Int("attempts", attempts),
		slog.String("outcome", outcome),
		slog.Any("error", err),
	)
}

func outcomeLabel(err error) string {
	var conversionErr *ConversionFailed
	var executionErr *execute.Error
	var inferenceErr *inference.Error
	switch {
	case errors.As(err, &conversionErr):
		return "exhausted"
	case errors.As(err, &executionErr):
		return "execution_error"
	case errors.As(err, &inferenceErr):
		return "inference_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}

func boundTurns(history []prompt.Turn, limit int) []prompt.Turn {
	turns := make([]prompt.Turn, 0, len(history))
	for _, turn := range history {
		if strings.TrimSpace(turn.Question) == "" {
			continue
		}
		turns = append(turns, turn)
	}
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
