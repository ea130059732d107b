package logging

import (
	"log/slog"
)

// WithComponent tags every record with the emitting subsystem,
// e.g. "bufferpool" or "seqindex".
func WithComponent(component string) *slog.Logger {
	return GetLogger().With("component", component)
}

func WithFile(component, file string) *slog.Logger {
	return GetLogger().With("component", component, "file", file)
}

func WithBlock(file string, blockNo uint32) *slog.Logger {
	return GetLogger().With("file", file, "block", blockNo)
}

// WithIndex is used by index operations; it carries the index file and
// whether the index is unique.
func WithIndex(file string, unique bool) *slog.Logger {
	return GetLogger().With("component", "seqindex", "index", file, "unique", unique)
}
