// Package sink delivers finished journal documents.
package sink

import (
	"context"
	"errors"

	"github.com/thebtf/scribe/pkg/models"
)

// Sink receives a completed document. Implementations must tolerate being
// called from concurrent runs.
type Sink interface {
	Write(ctx context.Context, doc *models.JournalDocument) error
}

// Multi fans one document out to several sinks. Every sink is attempted;
// failures are collected rather than short-circuiting delivery.
type Multi []Sink

func (m Multi) Write(ctx context.Context, doc *models.JournalDocument) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
