// internal/report/report.go
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// ProfileResult summarizes what happened on one target profile.
type ProfileResult struct {
	Username    string   `json:"username"`
	PostsOpened int      `json:"posts_opened"`
	Likes       int      `json:"likes"`
	Comments    int      `json:"comments"`
	Skipped     int      `json:"skipped"`
	Errors      []string `json:"errors,omitempty"`
}

// Totals aggregates the per-profile counters.
type Totals struct {
	Profiles    int `json:"profiles"`
	PostsOpened int `json:"posts_opened"`
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Skipped     int `json:"skipped"`
}

// Report is the JSON envelope written at the end of a run.
type Report struct {
	RunID      string          `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	DryRun     bool            `json:"dry_run,omitempty"`
	Aborted    string          `json:"aborted,omitempty"`
	Profiles   []ProfileResult `json:"profiles"`
	Totals     Totals          `json:"totals"`
}

// New starts an empty report with a fresh run ID.
func New(dryRun bool) *Report {
	return &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		DryRun:    dryRun,
	}
}

// Add appends one profile's result and rolls it into the totals.
func (r *Report) Add(pr ProfileResult) {
	r.Profiles = append(r.Profiles, pr)
	r.Totals.Profiles++
	r.Totals.PostsOpened += pr.PostsOpened
	r.Totals.Likes += pr.Likes
	r.Totals.Comments += pr.Comments
	r.Totals.Skipped += pr.Skipped
}

// Finish stamps the end time and records why the run stopped early, if it did.
func (r *Report) Finish(abortReason string) {
	r.FinishedAt = time.Now().UTC()
	r.Aborted = abortReason
}

// Write serializes the report to the given path.
func (r *Report) Write(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write run report: %w", err)
	}
	return nil
}
