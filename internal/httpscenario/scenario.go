// Package httpscenario runs an ordered list of HTTP GET steps as one
// iteration of a load run.
//
// Each step records a "status was <code>" check. A step may require a
// non-empty JSON value in its response; when the requirement fails the
// iteration ends early without an error. Values extracted from a response
// become variables for the steps after it.
package httpscenario

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wesleyorama2/surge/internal/ramp"
	"github.com/wesleyorama2/surge/pkg/jsonpath"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 10 << 20

// Config describes the scenario.
type Config struct {
	BaseURL   string
	UserAgent string
	Headers   map[string]string
	Client    ClientConfig

	// Variables are fixed for the whole run.
	Variables map[string]string

	// Pools bind a variable to a random element at the start of every
	// iteration.
	Pools map[string][]string

	Steps []Step
}

// Step is one GET request.
type Step struct {
	Name    string
	URL     string
	Headers map[string]string

	// ExpectStatus is the status the check compares against (default 200).
	ExpectStatus int

	// Require is a JSONPath that must hold a non-empty value in the
	// response body for the iteration to continue.
	Require string

	// RequireArray narrows Require to a non-empty JSON array.
	RequireArray bool

	// Extract maps variable names to JSONPaths in the response body.
	Extract map[string]string
}

// CheckName returns the check recorded for the step's status.
func (s Step) CheckName() string {
	return fmt.Sprintf("status was %d", s.expectStatus())
}

func (s Step) requirementMet(body []byte) bool {
	if s.RequireArray {
		return jsonpath.NonEmptyArray(body, s.Require)
	}
	return jsonpath.NonEmpty(body, s.Require)
}

func (s Step) expectStatus() int {
	if s.ExpectStatus == 0 {
		return http.StatusOK
	}
	return s.ExpectStatus
}

// Scenario executes the configured steps. It is safe for concurrent use by
// many workers.
type Scenario struct {
	cfg    Config
	client *http.Client
	logger zerolog.Logger
}

// New creates a scenario with its shared HTTP client.
func New(cfg Config, logger zerolog.Logger) (*Scenario, error) {
	if len(cfg.Steps) == 0 {
		return nil, &ramp.ValidationError{Field: "steps", Message: "at least one step is required"}
	}
	for name, pool := range cfg.Pools {
		if len(pool) == 0 {
			return nil, &ramp.ValidationError{Field: "pools." + name, Message: "pool must not be empty"}
		}
	}

	return &Scenario{
		cfg:    cfg,
		client: NewClient(cfg.Client),
		logger: logger.With().Str("component", "httpscenario").Logger(),
	}, nil
}

// Run executes one iteration. It matches ramp.Scenario.
//
// Transport failures are returned as errors; unexpected statuses are only
// recorded as failed checks.
func (s *Scenario) Run(ctx context.Context, it *ramp.Iteration) error {
	vars := s.iterationVars()

	for i, step := range s.cfg.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step-%d", i+1)
		}

		status, body, err := s.get(ctx, step, vars)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}

		it.Check(step.CheckName(), status == step.expectStatus())

		if step.Require != "" && !step.requirementMet(body) {
			s.logger.Debug().
				Int("worker", it.WorkerID).
				Str("step", name).
				Str("require", step.Require).
				Msg("requirement not met, ending iteration")
			return nil
		}

		if len(step.Extract) > 0 {
			values, err := jsonpath.ExtractAll(body, step.Extract)
			if err != nil {
				s.logger.Debug().
					Int("worker", it.WorkerID).
					Str("step", name).
					Err(err).
					Msg("extraction failed, ending iteration")
				return nil
			}
			for k, v := range values {
				vars[k] = v
			}
		}
	}

	return nil
}

// Close releases idle connections.
func (s *Scenario) Close() {
	s.client.CloseIdleConnections()
}

// iterationVars builds the variable set for one iteration: fixed variables,
// baseUrl and one random draw from every pool.
func (s *Scenario) iterationVars() map[string]string {
	vars := make(map[string]string, len(s.cfg.Variables)+len(s.cfg.Pools)+1)
	for k, v := range s.cfg.Variables {
		vars[k] = v
	}
	if s.cfg.BaseURL != "" {
		vars["baseUrl"] = s.cfg.BaseURL
	}
	for k, pool := range s.cfg.Pools {
		vars[k] = pool[rand.IntN(len(pool))]
	}
	return vars
}

func (s *Scenario) get(ctx context.Context, step Step, vars map[string]string) (int, []byte, error) {
	url := Resolve(step.URL, vars)
	if strings.HasPrefix(url, "/") && s.cfg.BaseURL != "" {
		url = strings.TrimSuffix(s.cfg.BaseURL, "/") + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if s.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", s.cfg.UserAgent)
	}
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, Resolve(v, vars))
	}
	for k, v := range step.Headers {
		req.Header.Set(k, Resolve(v, vars))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return resp.StatusCode, body, nil
}
