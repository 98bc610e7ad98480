package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/pkg/models"
)

// FileSink writes one pretty-printed JSON document per run under a
// directory, named after the covered period.
type FileSink struct {
	dir string
}

// NewFile creates a FileSink writing under dir, creating it if needed.
func NewFile(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sink: create %s: %w", dir, err)
	}
	return &FileSink{dir: dir}, nil
}

// Write stores the document as journal_<start>_<end>.json, overwriting any
// previous run for the same period.
func (f *FileSink) Write(ctx context.Context, doc *models.JournalDocument) error {
	name := fmt.Sprintf("journal_%s_%s.json",
		doc.Period.Start.Format("20060102"), doc.Period.End.Format("20060102"))
	path := filepath.Join(f.dir, name)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: encode journal: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("sink: write %s: %w", path, err)
	}

	log.Info().Str("path", path).Int("entries", len(doc.Entries)).Msg("Journal written")
	return nil
}

// WriterSink streams documents to an io.Writer, stdout in practice.
type WriterSink struct {
	w io.Writer
}

// NewWriter creates a WriterSink. A nil w selects stdout.
func NewWriter(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{w: w}
}

func (s *WriterSink) Write(ctx context.Context, doc *models.JournalDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("sink: encode journal: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.w.Write(data); err != nil {
		return fmt.Errorf("sink: write stream: %w", err)
	}
	return nil
}
