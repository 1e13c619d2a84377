// Package config loads and validates surge run files.
package config

import (
	"fmt"
	"strconv"
	"time"
)

// RunConfig is the root of a run file.
//
// Example YAML:
//
//	name: "user purchases"
//	settings:
//	  baseUrl: "http://localhost:3001"
//	  timeout: 10s
//	pools:
//	  userName: ["alice", "bob"]
//	load:
//	  startVUs: 0
//	  stages:
//	    - { duration: 10s, target: 20, name: ramp-up }
//	    - { duration: 20s, target: 20 }
//	    - { duration: 10s, target: 0 }
//	  pace: 1s
//	  gracefulStop: 0s
//	steps:
//	  - name: search
//	    url: "/search/user/{{userName}}"
//	    require: "$"
//	    extract: { userId: "$[0].id" }
//	  - name: purchases
//	    url: "/user/{{userId}}/purchases"
type RunConfig struct {
	// Name of the run (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Settings Settings `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Variables are fixed for the whole run
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// Pools bind a variable to a random element on every iteration
	Pools map[string][]string `json:"pools,omitempty" yaml:"pools,omitempty"`

	Load LoadProfile `json:"load" yaml:"load"`

	Steps []StepConfig `json:"steps" yaml:"steps"`
}

// Settings contains HTTP settings shared by every step.
type Settings struct {
	BaseURL string `json:"baseUrl,omitempty" yaml:"baseUrl,omitempty"`

	// Timeout is the per-request timeout
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	MaxConnectionsPerHost int `json:"maxConnectionsPerHost,omitempty" yaml:"maxConnectionsPerHost,omitempty"`

	MaxIdleConnsPerHost int `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`

	InsecureSkipVerify bool `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`

	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`

	// Headers are applied to every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// LoadProfile describes how the worker count evolves.
type LoadProfile struct {
	StartVUs int `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`

	Stages []StageConfig `json:"stages" yaml:"stages"`

	// Pace is the wait between iterations of one worker. Nil means 1s.
	Pace *Duration `json:"pace,omitempty" yaml:"pace,omitempty"`

	// GracefulStop bounds how long the run waits for in-flight iterations
	// once the timeline is over. Zero waits until they finish.
	GracefulStop Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`

	// TickInterval is how often the controller re-evaluates the target.
	TickInterval Duration `json:"tickInterval,omitempty" yaml:"tickInterval,omitempty"`

	// MaxVUs caps the number of running workers (0 = unlimited)
	MaxVUs int `json:"maxVUs,omitempty" yaml:"maxVUs,omitempty"`
}

// StageConfig defines a single stage.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`

	Target int `json:"target" yaml:"target"`

	// Name is an optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// StepConfig defines one GET request.
type StepConfig struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// URL is absolute, or a path joined to settings.baseUrl
	URL string `json:"url" yaml:"url"`

	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// ExpectStatus is the status checked as "status was <code>" (default 200)
	ExpectStatus int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// Require is a JSONPath that must hold a non-empty value, or the
	// iteration ends after this step
	Require string `json:"require,omitempty" yaml:"require,omitempty"`

	// RequireArray makes Require accept only a non-empty array
	RequireArray bool `json:"requireArray,omitempty" yaml:"requireArray,omitempty"`

	// Extract maps variable names to JSONPaths in the response body
	Extract map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// GetDuration returns the duration or a default if empty.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	if s == "null" {
		s = ""
	}
	return d.set(s)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	dur, err := ParseDurationString(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// ParseDurationString parses a duration string.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
func ParseDurationString(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}
