package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Publisher copies a stored archive to a remote destination and returns
// a URL for it
type Publisher interface {
	Name() string
	Publish(ctx context.Context, stored *StoredArchive) (string, error)
}

// PublishAttempts is how many times a publish is tried before giving up
const PublishAttempts = 3

// PublishWithRetry tries p up to PublishAttempts times, sleeping attempt²
// units of backoff between tries. The last error is returned.
func PublishWithRetry(ctx context.Context, logger zerolog.Logger, p Publisher, stored *StoredArchive, backoff time.Duration) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= PublishAttempts; attempt++ {
		url, err := p.Publish(ctx, stored)
		if err == nil {
			return url, nil
		}
		lastErr = err
		logger.Warn().
			Err(err).
			Str("publisher", p.Name()).
			Int("attempt", attempt).
			Msgf("publish attempt %d/%d failed", attempt, PublishAttempts)

		if attempt < PublishAttempts {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt*attempt) * backoff):
			}
		}
	}
	return "", fmt.Errorf("%s publish failed after %d attempts: %w", p.Name(), PublishAttempts, lastErr)
}
