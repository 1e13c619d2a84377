package ramp_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/surge/internal/ramp"
)

func interruptedLoadStages() []ramp.Stage {
	return []ramp.Stage{
		{Duration: 10 * time.Second, Target: 20},
		{Duration: 20 * time.Second, Target: 20},
		{Duration: 10 * time.Second, Target: 0},
	}
}

func TestTimeline_TargetAt(t *testing.T) {
	tl, err := ramp.NewTimeline(0, interruptedLoadStages())
	require.NoError(t, err)

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{-time.Second, 0},
		{0, 0},
		{time.Second, 2},
		{5 * time.Second, 10},
		{10 * time.Second, 20},
		{15 * time.Second, 20},
		{30 * time.Second, 20},
		{35 * time.Second, 10},
		{39 * time.Second, 2},
		{40 * time.Second, 0},
		{time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tl.TargetAt(tt.elapsed))
		})
	}
}

func TestTimeline_IsComplete(t *testing.T) {
	tl, err := ramp.NewTimeline(0, interruptedLoadStages())
	require.NoError(t, err)

	assert.Equal(t, 40*time.Second, tl.TotalDuration())
	assert.False(t, tl.IsComplete(39*time.Second))
	assert.True(t, tl.IsComplete(40*time.Second))
	assert.True(t, tl.IsComplete(41*time.Second))
}

func TestTimeline_InterpolatesWithinEveryStage(t *testing.T) {
	stages := []ramp.Stage{
		{Duration: 3 * time.Second, Target: 30},
		{Duration: 7 * time.Second, Target: 2},
		{Duration: 5 * time.Second, Target: 11},
	}
	tl, err := ramp.NewTimeline(4, stages)
	require.NoError(t, err)

	from := 4
	var stageStart time.Duration
	for _, stage := range stages {
		for step := time.Duration(0); step < stage.Duration; step += 250 * time.Millisecond {
			progress := float64(step) / float64(stage.Duration)
			want := int(float64(from) + float64(stage.Target-from)*progress + 0.5)
			assert.Equal(t, want, tl.TargetAt(stageStart+step), "at %v", stageStart+step)
		}
		from = stage.Target
		stageStart += stage.Duration
	}

	assert.Equal(t, 11, tl.TargetAt(stageStart))
}

func TestTimeline_StartVUs(t *testing.T) {
	tl, err := ramp.NewTimeline(8, []ramp.Stage{{Duration: 4 * time.Second, Target: 0}})
	require.NoError(t, err)

	assert.Equal(t, 8, tl.StartVUs())
	assert.Equal(t, 8, tl.TargetAt(0))
	assert.Equal(t, 4, tl.TargetAt(2*time.Second))
	assert.Equal(t, 8, tl.MaxTarget())
}

func TestTimeline_StageAt(t *testing.T) {
	tl, err := ramp.NewTimeline(0, interruptedLoadStages())
	require.NoError(t, err)

	tests := []struct {
		elapsed   time.Duration
		wantIndex int
		wantKind  ramp.StageKind
	}{
		{0, 0, ramp.StageRampUp},
		{9 * time.Second, 0, ramp.StageRampUp},
		{10 * time.Second, 1, ramp.StageSteady},
		{30 * time.Second, 2, ramp.StageRampDown},
		{time.Minute, 2, ramp.StageRampDown},
	}

	for _, tt := range tests {
		idx, kind := tl.StageAt(tt.elapsed)
		assert.Equal(t, tt.wantIndex, idx, "index at %v", tt.elapsed)
		assert.Equal(t, tt.wantKind, kind, "kind at %v", tt.elapsed)
	}
}

func TestTimeline_Progress(t *testing.T) {
	tl, err := ramp.NewTimeline(0, interruptedLoadStages())
	require.NoError(t, err)

	assert.Equal(t, 0.0, tl.Progress(-time.Second))
	assert.InDelta(t, 0.25, tl.Progress(10*time.Second), 1e-9)
	assert.Equal(t, 1.0, tl.Progress(time.Minute))
}

func TestTimeline_StagesIsACopy(t *testing.T) {
	stages := interruptedLoadStages()
	tl, err := ramp.NewTimeline(0, stages)
	require.NoError(t, err)

	stages[0].Target = 1000
	got := tl.Stages()
	got[1].Target = 1000

	assert.Equal(t, 10, tl.TargetAt(5*time.Second))
	assert.Equal(t, 20, tl.TargetAt(15*time.Second))
}

func TestNewTimeline_InvalidConfig(t *testing.T) {
	tests := []struct {
		name     string
		startVUs int
		stages   []ramp.Stage
		field    string
	}{
		{"no stages", 0, nil, "stages"},
		{"zero duration", 0, []ramp.Stage{{Duration: 0, Target: 5}}, "stages[0].duration"},
		{"negative duration", 0, []ramp.Stage{{Duration: 5 * time.Second, Target: 5}, {Duration: -time.Second, Target: 1}}, "stages[1].duration"},
		{"negative target", 0, []ramp.Stage{{Duration: time.Second, Target: -1}}, "stages[0].target"},
		{"negative startVUs", -2, []ramp.Stage{{Duration: time.Second, Target: 1}}, "startVUs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl, err := ramp.NewTimeline(tt.startVUs, tt.stages)
			require.Error(t, err)
			assert.Nil(t, tl)
			assert.True(t, errors.Is(err, ramp.ErrInvalidConfig))

			var verrs *ramp.ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.NotEmpty(t, verrs.Errors)
			assert.Equal(t, tt.field, verrs.Errors[0].Field)
		})
	}
}
