package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/pkg/models"
)

// FileSource reads message export files: a single JSON file holding an array
// of raw messages, or a directory of such files.
type FileSource struct {
	path string
}

// NewFile creates a FileSource for a file or directory path.
func NewFile(path string) *FileSource {
	return &FileSource{path: path}
}

// Fetch loads every export under the configured path, keeps the messages
// inside period, and returns them sorted by timestamp.
func (f *FileSource) Fetch(ctx context.Context, period models.Period) ([]models.RawMessage, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, fmt.Errorf("source: stat %s: %w", f.path, err)
	}

	var files []string
	if info.IsDir() {
		entries, err := os.ReadDir(f.path)
		if err != nil {
			return nil, fmt.Errorf("source: read dir %s: %w", f.path, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			files = append(files, filepath.Join(f.path, e.Name()))
		}
		sort.Strings(files)
	} else {
		files = []string{f.path}
	}

	var msgs []models.RawMessage
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := readExport(file)
		if err != nil {
			return nil, err
		}
		for _, m := range batch {
			if period.Contains(m.Timestamp) {
				msgs = append(msgs, m)
			}
		}
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})

	log.Debug().Str("path", f.path).Int("files", len(files)).Int("messages", len(msgs)).
		Msg("Loaded message export")
	return msgs, nil
}

func readExport(path string) ([]models.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("source: read %s: %w", path, err)
	}
	var msgs []models.RawMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("source: parse %s: %w", path, err)
	}
	return msgs, nil
}
