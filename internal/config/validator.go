package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wesleyorama2/surge/internal/httpscenario"
	"github.com/wesleyorama2/surge/internal/ramp"
)

// Validate validates the run configuration.
//
// Returns nil if valid, or a *ramp.ValidationErrors containing all
// validation errors; it matches ramp.ErrInvalidConfig with errors.Is.
func (c *RunConfig) Validate() error {
	errs := &ramp.ValidationErrors{}

	validateLoad(&c.Load, errs)
	validateSettings(&c.Settings, errs)

	for name, pool := range c.Pools {
		if len(pool) == 0 {
			errs.Add(fmt.Sprintf("pools.%s", name), "pool must not be empty")
		}
		if _, clash := c.Variables[name]; clash {
			errs.Add(fmt.Sprintf("pools.%s", name), "name is also defined in variables")
		}
	}

	if len(c.Steps) == 0 {
		errs.Add("steps", "at least one step is required")
	}

	// Variables a step may reference: fixed ones, pools, baseUrl and
	// whatever earlier steps extract.
	known := map[string]bool{"baseUrl": c.Settings.BaseURL != ""}
	for name := range c.Variables {
		known[name] = true
	}
	for name := range c.Pools {
		known[name] = true
	}

	for i := range c.Steps {
		validateStep(fmt.Sprintf("steps[%d]", i), &c.Steps[i], c.Settings.BaseURL, known, errs)
		for name := range c.Steps[i].Extract {
			known[name] = true
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateLoad(load *LoadProfile, errs *ramp.ValidationErrors) {
	if load.StartVUs < 0 {
		errs.Add("load.startVUs", "must be non-negative")
	}
	if len(load.Stages) == 0 {
		errs.Add("load.stages", "at least one stage is required")
	}
	for i, stage := range load.Stages {
		prefix := fmt.Sprintf("load.stages[%d]", i)
		if stage.Duration <= 0 {
			errs.Add(prefix+".duration", "must be positive")
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", "must be non-negative")
		}
	}
	if load.Pace != nil && *load.Pace < 0 {
		errs.Add("load.pace", "must be non-negative")
	}
	if load.GracefulStop < 0 {
		errs.Add("load.gracefulStop", "must be non-negative")
	}
	if load.TickInterval < 0 {
		errs.Add("load.tickInterval", "must be non-negative")
	}
	if load.MaxVUs < 0 {
		errs.Add("load.maxVUs", "must be non-negative")
	}
}

func validateSettings(s *Settings, errs *ramp.ValidationErrors) {
	if s.BaseURL != "" {
		if err := validateHTTPURL(s.BaseURL); err != nil {
			errs.Add("settings.baseUrl", err.Error())
		}
	}
	if s.Timeout < 0 {
		errs.Add("settings.timeout", "must be non-negative")
	}
}

func validateStep(prefix string, step *StepConfig, baseURL string, known map[string]bool, errs *ramp.ValidationErrors) {
	switch {
	case step.URL == "":
		errs.Add(prefix+".url", "url is required")
	case strings.HasPrefix(step.URL, "/"):
		if baseURL == "" {
			errs.Add(prefix+".url", "relative url requires settings.baseUrl")
		}
	case strings.HasPrefix(step.URL, "{{"):
		// resolved below
	default:
		if err := validateHTTPURL(step.URL); err != nil {
			errs.Add(prefix+".url", err.Error())
		}
	}

	for _, name := range httpscenario.Placeholders(step.URL) {
		if !known[name] {
			errs.Add(prefix+".url", fmt.Sprintf("unknown variable '%s'", name))
		}
	}

	if step.ExpectStatus != 0 && (step.ExpectStatus < 100 || step.ExpectStatus > 599) {
		errs.Add(prefix+".expectStatus", fmt.Sprintf("invalid HTTP status %d", step.ExpectStatus))
	}

	if step.RequireArray && step.Require == "" {
		errs.Add(prefix+".requireArray", "requireArray needs require")
	}

	for name, path := range step.Extract {
		if name == "" {
			errs.Add(prefix+".extract", "variable name is required")
		}
		if path == "" {
			errs.Add(fmt.Sprintf("%s.extract.%s", prefix, name), "path is required")
		}
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("URL host is required")
	}
	return nil
}
