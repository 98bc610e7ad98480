// Package aicache caches validated structured-generation responses keyed by
// batch content fingerprints, guaranteeing at most one in-flight backend
// call per fingerprint.
package aicache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/thebtf/scribe/pkg/models"
)

// Fingerprint computes the stable cache key of a batch: an xxhash64 over the
// prompt version and every normalized text in batch order. The hash is
// order-pinned: the batcher emits messages in source order, so the same
// input set always hashes identically across runs and process restarts.
func Fingerprint(promptVersion string, batch []models.NormalizedMessage) string {
	h := xxhash.New()
	_, _ = h.WriteString(promptVersion)
	for _, msg := range batch {
		// NUL separators prevent adjacent texts from colliding.
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(msg.CleanedText)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
