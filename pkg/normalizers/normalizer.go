package normalizers

import (
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/vocab"
)

// Config controls the structured normalizers.
type Config struct {
	// BatchPivotYear splits two-digit years: values below it become 20xx,
	// the rest 19xx.
	BatchPivotYear int
	// BatchMinYear is the earliest plausible four-digit batch year.
	BatchMinYear int
	// MaxBatchYear caps how far into the future a batch year may land.
	// Zero means next calendar year.
	MaxBatchYear int
}

// DefaultConfig returns the default normalizer configuration.
func DefaultConfig() Config {
	return Config{
		BatchPivotYear: 50,
		BatchMinYear:   1900,
	}
}

// Normalizer turns raw member field values into their canonical forms. All
// methods are idempotent: feeding a canonical output back in returns the
// same value.
type Normalizer struct {
	vocabulary *vocab.Vocabulary
	config     Config
}

// New creates a Normalizer backed by the shared vocabulary.
func New(vocabulary *vocab.Vocabulary, config Config) *Normalizer {
	if config.BatchPivotYear == 0 {
		config.BatchPivotYear = DefaultConfig().BatchPivotYear
	}
	if config.BatchMinYear == 0 {
		config.BatchMinYear = DefaultConfig().BatchMinYear
	}
	if config.MaxBatchYear == 0 {
		config.MaxBatchYear = time.Now().Year() + 1
	}
	return &Normalizer{
		vocabulary: vocabulary,
		config:     config,
	}
}

// Vocabulary exposes the shared vocabulary for components that already hold
// a Normalizer.
func (n *Normalizer) Vocabulary() *vocab.Vocabulary {
	return n.vocabulary
}

// Chapter canonicalizes a chapter name: whitespace collapsed, title-cased,
// trailing "Chapter" dropped.
func (n *Normalizer) Chapter(raw string) string {
	words := strings.Fields(raw)
	if len(words) > 1 && strings.EqualFold(words[len(words)-1], "chapter") {
		words = words[:len(words)-1]
	}
	for i, w := range words {
		words[i] = titleWord(strings.ToLower(w))
	}
	return strings.Join(words, " ")
}
