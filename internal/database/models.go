package database

// Run statuses.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusInterrupted = "interrupted"
	StatusFailed      = "failed"
)

// Run is one invocation of the audit over all sample files.
type Run struct {
	ID            int64
	UUID          string
	Number        int
	Mode          string
	Provider      string
	Model         string
	RubricVersion string
	Cycles        int
	FileCount     int
	Status        string
	Scored        int
	Excluded      int
	Failed        int
	StartedAt     *string
	FinishedAt    *string
}

// Attempts is the number of file audits the run planned.
func (r Run) Attempts() int {
	return r.Cycles * r.FileCount
}

// NewRun holds the fields known when a run starts.
type NewRun struct {
	Number        int
	Mode          string
	Provider      string
	Model         string
	RubricVersion string
	Cycles        int
	FileCount     int
}

// Counts are the totals recorded when a run finishes.
type Counts struct {
	Scored   int
	Excluded int
	Failed   int
}

// Stats contains aggregate database statistics.
type Stats struct {
	Runs          int
	CompletedRuns int
	Rows          int
	Files         int
	Exclusions    int
	LatestRun     int
}
