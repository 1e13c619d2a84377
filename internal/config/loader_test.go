package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/ramp"
)

const purchasesYAML = `
name: "user purchases"
settings:
  baseUrl: "http://localhost:3001"
  timeout: 10s
pools:
  userName: ["alice", "bob"]
load:
  startVUs: 0
  stages:
    - { duration: 10s, target: 20, name: ramp-up }
    - { duration: 20s, target: 20 }
    - { duration: 10, target: 0 }
  gracefulStop: 0s
steps:
  - name: search
    url: "/search/user/{{userName}}"
    require: "$"
    extract: { userId: "$[0].id" }
  - name: purchases
    url: "/user/{{userId}}/purchases"
  - url: "/user/{{userId}}/purchases/cancellations"
`

func TestParseConfig_YAML(t *testing.T) {
	cfg, err := ParseConfig([]byte(purchasesYAML), "run.yaml")
	require.NoError(t, err)

	assert.Equal(t, "user purchases", cfg.Name)
	assert.Equal(t, "http://localhost:3001", cfg.Settings.BaseURL)
	assert.Equal(t, Duration(10*time.Second), cfg.Settings.Timeout)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Pools["userName"])
	require.Len(t, cfg.Load.Stages, 3)
	assert.Equal(t, Duration(10*time.Second), cfg.Load.Stages[2].Duration, "bare integers are seconds")
	assert.Equal(t, "ramp-up", cfg.Load.Stages[0].Name)
	assert.Nil(t, cfg.Load.Pace)
	require.Len(t, cfg.Steps, 3)
	assert.Equal(t, "$[0].id", cfg.Steps[0].Extract["userId"])

	ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, Duration(DefaultPace), *cfg.Load.Pace)
	assert.Equal(t, "stage-2", cfg.Load.Stages[1].Name)
	assert.Equal(t, "step-3", cfg.Steps[2].Name)
	assert.Equal(t, 200, cfg.Steps[2].ExpectStatus)
	assert.Equal(t, DefaultUserAgent, cfg.Settings.UserAgent)
}

func TestParseConfig_JSON(t *testing.T) {
	data := `{
		"settings": {"baseUrl": "http://api.test"},
		"load": {"stages": [{"duration": "1m", "target": 5}], "pace": "0s", "maxVUs": 4},
		"steps": [{"url": "/health", "expectStatus": 204}]
	}`

	cfg, err := ParseConfig([]byte(data), "run.json")
	require.NoError(t, err)
	ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	require.NotNil(t, cfg.Load.Pace)
	assert.Equal(t, Duration(0), *cfg.Load.Pace, "explicit zero pace is kept")
	assert.Equal(t, 204, cfg.Steps[0].ExpectStatus)
}

func TestParseConfig_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing steps", `load: {stages: [{duration: 1s, target: 1}]}`, "steps"},
		{"unknown field", "load: {stages: [{duration: 1s, target: 1}]}\nsteps: [{url: /x}]\nthreads: 4", "threads"},
		{"bad duration", "load: {stages: [{duration: soon, target: 1}]}\nsteps: [{url: /x}]", "/load/stages/0/duration"},
		{"target not integer", "load: {stages: [{duration: 1s, target: many}]}\nsteps: [{url: /x}]", "/load/stages/0/target"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data), "run.yml")
			require.Error(t, err)
			assert.ErrorIs(t, err, ramp.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseConfig_Malformed(t *testing.T) {
	_, err := ParseConfig([]byte(`{"load": `), "run.json")
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ramp.ErrInvalidConfig))

	_, err = ParseConfig([]byte("load: [unclosed"), "run.yaml")
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(purchasesYAML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Steps, 3)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_ExampleRunFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "examples", "purchases.yaml"))
	require.NoError(t, err)

	ApplyDefaults(cfg)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "user purchases", cfg.Name)
	require.Len(t, cfg.Load.Stages, 3)
	assert.Equal(t, Duration(20*time.Second), cfg.Load.Stages[1].Duration)
	require.Len(t, cfg.Steps, 3)
	assert.Equal(t, "$", cfg.Steps[0].Require)
	assert.True(t, cfg.Steps[0].RequireArray)
	assert.True(t, cfg.ScenarioConfig().Steps[0].RequireArray)
}

func TestRunConfig_Conversions(t *testing.T) {
	cfg, err := ParseConfig([]byte(purchasesYAML), "run.yaml")
	require.NoError(t, err)
	ApplyDefaults(cfg)

	rc := cfg.RampConfig()
	assert.Equal(t, 0, rc.StartVUs)
	require.Len(t, rc.Stages, 3)
	assert.Equal(t, ramp.Stage{Duration: 10 * time.Second, Target: 20, Name: "ramp-up"}, rc.Stages[0])
	assert.Equal(t, time.Second, rc.Pace)
	assert.Zero(t, rc.GracefulStop)
	require.NoError(t, rc.Validate())

	sc := cfg.ScenarioConfig()
	assert.Equal(t, "http://localhost:3001", sc.BaseURL)
	assert.Equal(t, 10*time.Second, sc.Client.Timeout)
	assert.Equal(t, 100, sc.Client.MaxIdleConnsPerHost)
	require.Len(t, sc.Steps, 3)
	assert.Equal(t, "search", sc.Steps[0].Name)
	assert.Equal(t, "$", sc.Steps[0].Require)
}

func TestParseStages(t *testing.T) {
	stages, err := ParseStages("10s:20, 20s:20,10s:0")
	require.NoError(t, err)
	require.Len(t, stages, 3)
	assert.Equal(t, StageConfig{Duration: Duration(10 * time.Second), Target: 20, Name: "stage-1"}, stages[0])
	assert.Equal(t, 0, stages[2].Target)

	stages, err = ParseStages("1m30s:5")
	require.NoError(t, err)
	assert.Equal(t, Duration(90*time.Second), stages[0].Duration)

	for _, bad := range []string{"", "10s", "soon:5", "10s:many", " , "} {
		_, err := ParseStages(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDurationString(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"30s", 30 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"500ms", 500 * time.Millisecond, false},
		{"30", 30 * time.Second, false},
		{"thirty", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseDurationString(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestDuration_JSON(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"2m"`)))
	assert.Equal(t, Duration(2*time.Minute), d)

	require.NoError(t, d.UnmarshalJSON([]byte(`null`)))
	assert.Equal(t, Duration(0), d)

	assert.Error(t, d.UnmarshalJSON([]byte(`"later"`)))

	b, err := Duration(1500 * time.Millisecond).MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))
	assert.Equal(t, 5*time.Second, Duration(0).GetDuration(5*time.Second))
}
