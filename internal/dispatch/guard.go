package dispatch

import (
	"context"

	"github.com/google/uuid"
)

// NoopGuard allows every dispatch. Used for the "off" dedup policy.
type NoopGuard struct{}

func (NoopGuard) Acquire(context.Context, uuid.UUID) (bool, error) {
	return true, nil
}

func (NoopGuard) Release(context.Context, uuid.UUID) error {
	return nil
}
