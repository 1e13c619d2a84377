package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/surge/internal/httpscenario"
	"github.com/wesleyorama2/surge/internal/ramp"
	"github.com/wesleyorama2/surge/pkg/jsonschema"
)

//go:embed schema.json
var schemaJSON string

var runSchema = jsonschema.MustCompile(schemaJSON)

// Defaults applied by ApplyDefaults.
const (
	DefaultPace      = time.Second
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "surge/1.0"
)

// LoadConfig loads a run file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
func LoadConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses run file data and checks it against the run file
// schema. The format is taken from the extension of path; anything other
// than .json is read as YAML.
//
// Schema violations are returned wrapped in ramp.ErrInvalidConfig.
func ParseConfig(data []byte, path string) (*RunConfig, error) {
	isJSON := strings.ToLower(filepath.Ext(path)) == ".json"

	var doc interface{}
	if isJSON {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := runSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ramp.ErrInvalidConfig, err)
	}

	var config RunConfig
	if isJSON {
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	return &config, nil
}

// ApplyDefaults applies default values to a RunConfig.
func ApplyDefaults(config *RunConfig) {
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = Duration(DefaultTimeout)
	}
	if config.Settings.MaxIdleConnsPerHost == 0 {
		config.Settings.MaxIdleConnsPerHost = 100
	}
	if config.Settings.UserAgent == "" {
		config.Settings.UserAgent = DefaultUserAgent
	}

	if config.Load.Pace == nil {
		pace := Duration(DefaultPace)
		config.Load.Pace = &pace
	}

	for i := range config.Load.Stages {
		if config.Load.Stages[i].Name == "" {
			config.Load.Stages[i].Name = fmt.Sprintf("stage-%d", i+1)
		}
	}

	for i := range config.Steps {
		if config.Steps[i].Name == "" {
			config.Steps[i].Name = fmt.Sprintf("step-%d", i+1)
		}
		if config.Steps[i].ExpectStatus == 0 {
			config.Steps[i].ExpectStatus = 200
		}
	}
}

// RampConfig converts the load section. Sink, Clock and Logger are left for
// the caller.
func (c *RunConfig) RampConfig() ramp.Config {
	stages := make([]ramp.Stage, len(c.Load.Stages))
	for i, s := range c.Load.Stages {
		stages[i] = ramp.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		}
	}

	var pace time.Duration
	if c.Load.Pace != nil {
		pace = time.Duration(*c.Load.Pace)
	}

	return ramp.Config{
		StartVUs:     c.Load.StartVUs,
		Stages:       stages,
		Pace:         pace,
		TickInterval: time.Duration(c.Load.TickInterval),
		GracefulStop: time.Duration(c.Load.GracefulStop),
		MaxWorkers:   c.Load.MaxVUs,
	}
}

// ScenarioConfig converts the settings, variables and steps.
func (c *RunConfig) ScenarioConfig() httpscenario.Config {
	steps := make([]httpscenario.Step, len(c.Steps))
	for i, s := range c.Steps {
		steps[i] = httpscenario.Step{
			Name:         s.Name,
			URL:          s.URL,
			Headers:      s.Headers,
			ExpectStatus: s.ExpectStatus,
			Require:      s.Require,
			RequireArray: s.RequireArray,
			Extract:      s.Extract,
		}
	}

	return httpscenario.Config{
		BaseURL:   c.Settings.BaseURL,
		UserAgent: c.Settings.UserAgent,
		Headers:   c.Settings.Headers,
		Client: httpscenario.ClientConfig{
			Timeout:             time.Duration(c.Settings.Timeout),
			MaxIdleConnsPerHost: c.Settings.MaxIdleConnsPerHost,
			MaxConnsPerHost:     c.Settings.MaxConnectionsPerHost,
			InsecureSkipVerify:  c.Settings.InsecureSkipVerify,
		},
		Variables: c.Variables,
		Pools:     c.Pools,
		Steps:     steps,
	}
}

// ParseStages parses the compact "duration:target,..." stage format used on
// the command line, e.g. "10s:20,20s:20,10s:0".
func ParseStages(stagesStr string) ([]StageConfig, error) {
	var stages []StageConfig

	parts := strings.Split(stagesStr, ",")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		colonIdx := strings.LastIndex(part, ":")
		if colonIdx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}

		durationStr := part[:colonIdx]
		targetStr := part[colonIdx+1:]

		d, err := ParseDurationString(durationStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, durationStr, err)
		}

		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, StageConfig{
			Duration: Duration(d),
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}

	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}

	return stages, nil
}
