package ledger

// Status represents the lifecycle of a submission.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = map[Status]struct{}{
	StatusPending:    {},
	StatusProcessing: {},
	StatusCompleted:  {},
	StatusFailed:     {},
}

// validTransitions lists the allowed status moves. Anything else is a
// programming error and is rejected by SetStatus.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

func transitionAllowed(from, to Status) bool {
	for _, t := range validTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// InFlight reports whether the submission still occupies the pipeline.
func (s Status) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Submission is one ledger row: an uploaded clip and where it stands.
type Submission struct {
	ID           string
	SourceName   string
	RawPath      string
	SizeBytes    int64
	Status       Status
	RunID        string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
