// Package entityfilter selects entity IDs by glob pattern, the way
// cmd/haevlo decides which state_changed events are worth recording.
package entityfilter

import (
	"log/slog"
	"path"
)

// Filter matches entity IDs against a set of glob patterns understood by
// [path.Match] (e.g. "binary_sensor.*", "sensor.kitchen_*"). An empty
// pattern list matches every entity ID — the default when a caller
// never configures --entity at all.
type Filter struct {
	patterns []string
	logger   *slog.Logger
}

// New builds a Filter from globs. A nil or empty globs matches
// everything.
func New(globs []string, logger *slog.Logger) *Filter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Filter{patterns: globs, logger: logger}
}

// Match reports whether entityID matches at least one configured
// pattern, or whether the filter has no patterns at all.
func (f *Filter) Match(entityID string) bool {
	if len(f.patterns) == 0 {
		return true
	}
	for _, pat := range f.patterns {
		matched, err := path.Match(pat, entityID)
		if err != nil {
			f.logger.Debug("glob match error", "pattern", pat, "entity_id", entityID, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
