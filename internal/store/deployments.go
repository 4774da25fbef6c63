// Package store persists the deploy history.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mkarlsen/pushgate/internal/gate"
)

// Deployment is one recorded gate attempt.
type Deployment struct {
	ID         int64  `db:"id"`
	Repo       string `db:"repo"`
	Ref        string `db:"ref"`
	OldHash    string `db:"old_hash"`
	NewHash    string `db:"new_hash"`
	Step       string `db:"step"`
	ExitCode   int    `db:"exit_code"`
	StartedAt  string `db:"started_at"`
	DurationMS int64  `db:"duration_ms"`
}

// Succeeded reports whether the attempt accepted the push.
func (d Deployment) Succeeded() bool {
	return d.ExitCode == 0
}

// Deployments stores gate attempts in the history database.
type Deployments struct {
	db *sqlx.DB
}

// NewDeployments returns a Deployments store backed by db.
func NewDeployments(db *sqlx.DB) *Deployments {
	return &Deployments{db: db}
}

// Record inserts one gate attempt. Implements gate.Recorder.
func (s *Deployments) Record(ctx context.Context, a gate.Attempt) error {
	rec := Deployment{
		Repo:       a.Repo,
		Ref:        a.Ref,
		OldHash:    a.OldHash,
		NewHash:    a.NewHash,
		Step:       a.Step,
		ExitCode:   a.ExitCode,
		StartedAt:  a.StartedAt.UTC().Format(time.RFC3339),
		DurationMS: a.Duration.Milliseconds(),
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO deployments (repo, ref, old_hash, new_hash, step, exit_code, started_at, duration_ms)
		VALUES (:repo, :ref, :old_hash, :new_hash, :step, :exit_code, :started_at, :duration_ms)`,
		rec,
	)
	if err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// Recent returns the most recent attempts, newest first.
func (s *Deployments) Recent(ctx context.Context, limit int) ([]Deployment, error) {
	var out []Deployment
	err := s.db.SelectContext(ctx, &out, `
		SELECT id, repo, ref, old_hash, new_hash, step, exit_code, started_at, duration_ms
		FROM deployments ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select deployments: %w", err)
	}
	return out, nil
}
