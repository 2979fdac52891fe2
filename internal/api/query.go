package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/querypilot/querypilot/internal/auth"
	"github.com/querypilot/querypilot/internal/execute"
	"github.com/querypilot/querypilot/internal/inference"
	"github.com/querypilot/querypilot/internal/introspect"
	"github.com/querypilot/querypilot/internal/pipeline"
	"github.com/querypilot/querypilot/internal/prompt"
)

type queryRequest struct {
	Question string        `json:"question"`
	History  []prompt.Turn `json:"history"`
}

type queryResponse struct {
	Success bool `json:"success"`
	pipeline.Response
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Converter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return
	}
	if err := requireRole(r, auth.RoleQueryReader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return
	}

	var request queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	response, err := deps.Converter.Convert(r.Context(), request.Question, request.History)
	if err != nil {
		writeConversionError(r, w, response, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Success: true, Response: response})
}

func writeConversionError(r *http.Request, w http.ResponseWriter, response pipeline.Response, err error) {
	ctx := r.Context()

	var (
		conversionErr *pipeline.ConversionFailed
		inferenceErr  *inference.Error
		executionErr  *execute.Error
		introspectErr *introspect.Error
	)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(ctx, w, http.StatusBadRequest, "QUESTION_REQUIRED", err.Error(), false, nil)
	case errors.As(err, &conversionErr):
		failure := conversionErr.Last
		writeError(ctx, w, http.StatusUnprocessableEntity, "CONVERSION_FAILED", failure.Error(), false, map[string]any{
			"question":   response.Question,
			"attempts":   conversionErr.Attempts,
			"reason":     string(failure.Reason),
			"identifier": failure.Identifier(),
		})
	case errors.As(err, &inferenceErr):
		status, code := http.StatusBadGateway, "INFERENCE_FAILED"
		switch inferenceErr.Kind {
		case inference.KindTimeout:
			status, code = http.StatusGatewayTimeout, "INFERENCE_TIMEOUT"
		case inference.KindResourceExhausted:
			status, code = http.StatusServiceUnavailable, "INFERENCE_UNAVAILABLE"
		}
		writeError(ctx, w, status, code, fmt.Sprintf("language model %s", inferenceErr.Kind), true, map[string]any{
			"question": response.Question,
			"attempts": response.Attempts,
		})
	case errors.As(err, &executionErr):
		if executionErr.Timeout {
			writeError(ctx, w, http.StatusGatewayTimeout, "EXECUTION_TIMEOUT", "query timed out", true, map[string]any{"sql": response.SQL})
			return
		}
		writeError(ctx, w, http.StatusBadRequest, "EXECUTION_FAILED", executionErr.Error(), executionErr.Retryable(), map[string]any{"sql": response.SQL})
	case errors.As(err, &introspectErr):
		writeError(ctx, w, http.StatusServiceUnavailable, "SCHEMA_UNAVAILABLE", "failed to load database schema", true, map[string]any{"details": introspectErr.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(ctx, w, http.StatusRequestTimeout, "REQUEST_CANCELLED", "request was cancelled", true, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "INTERNAL", "conversion failed", false, map[string]any{"details": err.Error()})
	}
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
