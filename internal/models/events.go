package models

import (
	"strings"
	"time"
)

// ChangeFlags is the opaque flag bag carried by a filesystem notification.
type ChangeFlags uint8

const (
	FlagCreated ChangeFlags = 1 << iota
	FlagModified
	FlagRemoved
	FlagRenamed
	FlagIsFile
	FlagIsDir
)

// Has reports whether all bits of o are set.
func (f ChangeFlags) Has(o ChangeFlags) bool {
	return f&o == o
}

func (f ChangeFlags) String() string {
	if f == 0 {
		return "none"
	}
	names := []struct {
		flag ChangeFlags
		name string
	}{
		{FlagCreated, "created"},
		{FlagModified, "modified"},
		{FlagRemoved, "removed"},
		{FlagRenamed, "renamed"},
		{FlagIsFile, "file"},
		{FlagIsDir, "dir"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if f.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ChangeEvent is one filesystem notification.
type ChangeEvent struct {
	Path      string
	Timestamp time.Time
	Flags     ChangeFlags
}

// ChangeBatch is a debounced, path-deduplicated set of events sorted by timestamp.
type ChangeBatch struct {
	ID     string
	Events []ChangeEvent
}

// Paths returns the paths of the batch in order.
func (b ChangeBatch) Paths() []string {
	paths := make([]string, 0, len(b.Events))
	for _, ev := range b.Events {
		paths = append(paths, ev.Path)
	}
	return paths
}
