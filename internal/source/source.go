// Package source loads raw messages for a pipeline run.
package source

import (
	"context"

	"github.com/thebtf/scribe/pkg/models"
)

// Source yields the raw messages falling inside a period, ordered by
// timestamp ascending. Implementations filter; callers never see messages
// outside the period.
type Source interface {
	Fetch(ctx context.Context, period models.Period) ([]models.RawMessage, error)
}
