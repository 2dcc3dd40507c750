package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/authsvc/pkg/observability"
)

// DefaultPurgeAge keeps superseded refresh tokens for as long as the longest
// lived refresh token, so a replayed token is still recognised as superseded
const DefaultPurgeAge = 240 * time.Hour

// RefreshTokenPurger deletes refresh token rows superseded before cutoff
type RefreshTokenPurger interface {
	PurgeSupersededRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// PurgeJob removes old superseded refresh tokens. Current tokens are never touched.
type PurgeJob struct {
	store   RefreshTokenPurger
	age     time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewPurgeJob creates the purge job. metrics may be nil.
func NewPurgeJob(store RefreshTokenPurger, age time.Duration, logger *observability.Logger, metrics *observability.Metrics) *PurgeJob {
	if age <= 0 {
		age = DefaultPurgeAge
	}
	return &PurgeJob{
		store:   store,
		age:     age,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// Run deletes rows superseded more than age ago
func (j *PurgeJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.age)
	n, err := j.store.PurgeSupersededRefreshTokens(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge refresh tokens: %w", err)
	}
	if j.metrics != nil {
		j.metrics.RefreshRowsPurged.Add(float64(n))
	}
	j.logger.WithField("rows", n).WithField("cutoff", cutoff).Info("Purged superseded refresh tokens")
	return nil
}
