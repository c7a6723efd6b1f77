//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/taxid-cli/internal/model"
	"github.com/sells-group/taxid-cli/internal/monitoring"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:              "abc12345-6789-0000-0000-000000000000",
			Status:          model.RunStatusComplete,
			StartedAt:       now,
			CompletedAt:     now.Add(2 * time.Minute),
			SourcesOK:       4,
			Unified:         51234,
			DuplicateGroups: 87,
		},
		{
			ID:            "def12345-6789-0000-0000-000000000000",
			Status:        model.RunStatusPartial,
			StartedAt:     now.Add(-24 * time.Hour),
			CompletedAt:   now.Add(-24*time.Hour + time.Minute),
			SourcesOK:     3,
			SourcesFailed: 1,
			BatchesFailed: 2,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "partial")
	assert.Contains(t, output, "2025-06-15T10:30:00Z")
	assert.Contains(t, output, "4/4")
	assert.Contains(t, output, "3/4")
	assert.Contains(t, output, "51234")
	assert.Contains(t, output, "2m0s")
}

func TestFormatSnapshot(t *testing.T) {
	last := model.Run{ID: "run-1", Status: model.RunStatusFailed, StartedAt: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}
	snap := &monitoring.Snapshot{
		RunsTotal:     4,
		RunsComplete:  2,
		RunsPartial:   1,
		RunsFailed:    1,
		FailRate:      0.25,
		SourcesFailed: 5,
		BatchesFailed: 1,
		LastRun:       &last,
		LookbackHours: 168,
	}

	var buf bytes.Buffer
	formatSnapshot(&buf, snap)

	output := buf.String()
	assert.Contains(t, output, "Runs (last 168h): 4")
	assert.Contains(t, output, "Failed:   1 (25.0%)")
	assert.Contains(t, output, "Sources skipped: 5")
	assert.Contains(t, output, "Last run: run-1 failed")
}

func TestFormatSnapshot_AllTime(t *testing.T) {
	var buf bytes.Buffer
	formatSnapshot(&buf, &monitoring.Snapshot{})

	assert.Contains(t, buf.String(), "Runs (all time): 0")
	assert.NotContains(t, buf.String(), "Last run")
}
