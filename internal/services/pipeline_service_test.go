// internal/services/pipeline_service_test.go
package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLastCycleBeforeFirstRun(t *testing.T) {
	svc := &PipelineService{}

	_, ok := svc.LastCycle()
	assert.False(t, ok)
	assert.False(t, svc.Running())
}

func TestFinishRecordsCycleOutcome(t *testing.T) {
	svc := &PipelineService{}
	status := &CycleStatus{
		ID:        "cycle-1",
		StartedAt: time.Now().Add(-time.Second),
		Due:       10,
		Ingested:  8,
	}

	svc.finish(status, nil)

	last, ok := svc.LastCycle()
	require.True(t, ok)
	assert.Equal(t, "cycle-1", last.ID)
	assert.Equal(t, 10, last.Due)
	assert.Empty(t, last.Error)
	assert.False(t, last.FinishedAt.IsZero())
	assert.Greater(t, last.Duration, time.Duration(0))
}

func TestFinishRecordsFailure(t *testing.T) {
	svc := &PipelineService{}
	status := &CycleStatus{ID: "cycle-2", StartedAt: time.Now()}

	svc.finish(status, errors.New("due lookup failed"))

	last, ok := svc.LastCycle()
	require.True(t, ok)
	assert.Equal(t, "due lookup failed", last.Error)
}

func TestFinishKeepsLatestCycleOnly(t *testing.T) {
	svc := &PipelineService{}

	svc.finish(&CycleStatus{ID: "cycle-1", StartedAt: time.Now()}, nil)
	svc.finish(&CycleStatus{ID: "cycle-2", StartedAt: time.Now()}, nil)

	last, ok := svc.LastCycle()
	require.True(t, ok)
	assert.Equal(t, "cycle-2", last.ID)
}
