package models

// FileState is the state of one side (index or working tree) of a status entry.
type FileState int

const (
	Unmodified FileState = iota
	Added
	Modified
	Deleted
	Renamed
	Copied
	Unmerged
	Untracked
	Ignored
)

var fileStateNames = [...]string{
	Unmodified: "unmodified",
	Added:      "added",
	Modified:   "modified",
	Deleted:    "deleted",
	Renamed:    "renamed",
	Copied:     "copied",
	Unmerged:   "unmerged",
	Untracked:  "untracked",
	Ignored:    "ignored",
}

var fileStateCodes = [...]byte{
	Unmodified: ' ',
	Added:      'A',
	Modified:   'M',
	Deleted:    'D',
	Renamed:    'R',
	Copied:     'C',
	Unmerged:   'U',
	Untracked:  '?',
	Ignored:    '!',
}

func (s FileState) String() string {
	if s < 0 || int(s) >= len(fileStateNames) {
		return "unknown"
	}
	return fileStateNames[s]
}

// Code returns the porcelain character for the state.
func (s FileState) Code() byte {
	if s < 0 || int(s) >= len(fileStateCodes) {
		return 'M'
	}
	return fileStateCodes[s]
}

// StatusEntry represents one file from a porcelain status report.
// Entries are rebuilt on every parse and never mutated afterwards.
type StatusEntry struct {
	Path         string
	RenamedFrom  string // empty when the entry is not a rename or copy
	IndexState   FileState
	WorkingState FileState
}

// IsStaged reports whether the index side carries a change.
func (e StatusEntry) IsStaged() bool {
	return e.IndexState != Unmodified
}

// HasWorkingChanges reports whether the working tree side differs from the index.
func (e StatusEntry) HasWorkingChanges() bool {
	switch e.WorkingState {
	case Unmodified, Untracked, Ignored:
		return false
	default:
		return true
	}
}

// IsConflicted reports whether either side is unmerged.
func (e StatusEntry) IsConflicted() bool {
	return e.IndexState == Unmerged || e.WorkingState == Unmerged
}

// IsUntracked reports whether the file is not tracked yet.
func (e StatusEntry) IsUntracked() bool {
	return e.WorkingState == Untracked
}

// XY returns the two-character porcelain code of the entry.
func (e StatusEntry) XY() string {
	if e.IndexState == Unmodified {
		switch e.WorkingState {
		case Untracked:
			return "??"
		case Ignored:
			return "!!"
		}
	}
	return string([]byte{e.IndexState.Code(), e.WorkingState.Code()})
}

// StatusSummary aggregates a list of status entries.
type StatusSummary struct {
	Staged     int
	Unstaged   int
	Untracked  int
	Conflicted int
	Ignored    int
	Total      int
	IsClean    bool
}

// Summarize computes the summary for the given entries.
// Ignored entries do not make a tree dirty.
func Summarize(entries []StatusEntry) StatusSummary {
	var s StatusSummary
	for _, e := range entries {
		s.Total++
		switch {
		case e.IsConflicted():
			s.Conflicted++
			continue
		case e.WorkingState == Ignored:
			s.Ignored++
			continue
		case e.IsUntracked():
			s.Untracked++
			continue
		}
		if e.IsStaged() {
			s.Staged++
		}
		if e.HasWorkingChanges() {
			s.Unstaged++
		}
	}
	s.IsClean = s.Staged+s.Unstaged+s.Untracked+s.Conflicted == 0
	return s
}
