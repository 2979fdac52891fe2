package querypilotctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alecthomas/kong"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type cli struct {
	BaseURL string        `name:"base-url" default:"${base_url}" help:"QueryPilot API base URL."`
	APIKey  string        `name:"api-key" default:"${api_key}" help:"API key for authenticated requests."`
	Timeout time.Duration `name:"timeout" default:"${timeout}" help:"HTTP timeout (e.g. 30s)."`

	Health healthCmd `cmd:"" help:"GET /v1/health"`
	Ready  readyCmd  `cmd:"" help:"GET /v1/ready"`
	Schema schemaCmd `cmd:"" help:"GET /v1/schema"`
	Ask    askCmd    `cmd:"" help:"POST /v1/query"`
}

type healthCmd struct{}

func (c *healthCmd) Run(s *session) error {
	return s.printJSON(s.call(http.MethodGet, "/v1/health", nil))
}

type readyCmd struct{}

func (c *readyCmd) Run(s *session) error {
	return s.printJSON(s.call(http.MethodGet, "/v1/ready", nil))
}

type schemaCmd struct{}

func (c *schemaCmd) Run(s *session) error {
	return s.printJSON(s.call(http.MethodGet, "/v1/schema", nil))
}

type askCmd struct {
	SQLOnly  bool     `name:"sql-only" help:"Print only the generated SQL."`
	Question []string `arg:"" required:"" help:"Question in natural language."`
}

func (c *askCmd) Run(s *session) error {
	payload, err := json.Marshal(map[string]any{"question": strings.Join(c.Question, " ")})
	if err != nil {
		return err
	}
	body, err := s.call(http.MethodPost, "/v1/query", payload)
	if err != nil || !c.SQLOnly {
		return s.printJSON(body, err)
	}

	var response struct {
		SQL string `json:"sql"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return fmt.Errorf("decode query response: %w", err)
	}
	_, _ = fmt.Fprintln(s.stdout, response.SQL)
	return nil
}

type session struct {
	ctx     context.Context
	client  *http.Client
	baseURL string
	apiKey  string
	stdout  io.Writer
}

type httpError struct {
	status int
	body   string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.body)
}

// Run parses args and executes one command. It returns the process exit
// code: 0 on success, 1 when the request failed and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	exitCode := -1
	var parsed cli
	parser, err := kong.New(&parsed,
		kong.Name("querypilotctl"),
		kong.Description("Ask a QueryPilot server questions about your database."),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { exitCode = code }),
		kong.Vars{
			"base_url": firstNonEmpty(defaults.BaseURL, "http://localhost:8080"),
			"api_key":  strings.TrimSpace(defaults.APIKey),
			"timeout":  durationOr(defaults.Timeout, 30*time.Second).String(),
		},
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "querypilotctl: %v\n", err)
		return 2
	}

	kctx, err := parser.Parse(args)
	if exitCode >= 0 {
		return exitCode
	}
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "querypilotctl: %v\n", err)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: parsed.Timeout}
	}
	s := &session{
		ctx:     ctx,
		client:  client,
		baseURL: strings.TrimRight(parsed.BaseURL, "/"),
		apiKey:  strings.TrimSpace(parsed.APIKey),
		stdout:  stdout,
	}
	if err := kctx.Run(s); err != nil {
		var statusErr *httpError
		if errors.As(err, &statusErr) {
			_, _ = fmt.Fprintln(stderr, statusErr.Error())
			return 1
		}
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	return 0
}

func (s *session) call(method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(s.ctx, method, s.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &httpError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

func (s *session) printJSON(body []byte, err error) error {
	if err != nil {
		return err
	}
	if pretty, ok := prettyJSON(body); ok {
		_, _ = fmt.Fprintln(s.stdout, pretty)
		return nil
	}
	if len(body) > 0 {
		_, _ = fmt.Fprintln(s.stdout, string(body))
	}
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
