package shrink

// Action is the outcome of a processing decision
type Action int

const (
	// ActionSkip leaves a file alone, its digest matches the change log
	ActionSkip Action = iota
	// ActionProcess runs the file through the compressor
	ActionProcess
	// ActionLogOnly records the current digest without compressing
	ActionLogOnly
)

func (a Action) String() string {
	switch a {
	case ActionSkip:
		return "skip"
	case ActionProcess:
		return "process"
	case ActionLogOnly:
		return "log-only"
	default:
		return "unknown"
	}
}

// Decision is the action chosen for one file
type Decision struct {
	Action Action
	Digest string // content digest, empty when it was not needed
}

// Summary counts the outcomes of a run
type Summary struct {
	Directories int
	Processed   int
	Skipped     int
	Logged      int
	Failed      int // files
	DirFailures int // change logs that could not be loaded, listed or written
	BytesBefore int64
	BytesAfter  int64
	DryRun      bool
}

// Failures returns the number of failed files and directories
func (s *Summary) Failures() int {
	return s.Failed + s.DirFailures
}

// BytesSaved returns the size reduction over all processed files
func (s *Summary) BytesSaved() int64 {
	return s.BytesBefore - s.BytesAfter
}

// ProgressUpdate is a delta sent to progress listeners
type ProgressUpdate struct {
	TotalDelta      int
	ProcessedDelta  int
	SkippedDelta    int
	FailedDelta     int
	BytesSavedDelta int64
	File            string // file just handled, empty for total updates
}
