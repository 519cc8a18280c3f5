package model

import (
	"fmt"
	"strings"
)

// Outcome is how a traversal execution ended.
type Outcome int

const (
	// OutcomeCompleted means no unvisited node remained at the root level.
	OutcomeCompleted Outcome = iota

	// OutcomeStopped means the operator stopped the run, or its context was
	// cancelled. The checkpoint is valid and the run can be resumed.
	OutcomeStopped

	// OutcomeResumeFailed means the checkpoint did not match the live tree.
	OutcomeResumeFailed

	// OutcomeAborted means the checkpoint could not be written.
	OutcomeAborted
)

// String returns the persisted name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeStopped:
		return "stopped"
	case OutcomeResumeFailed:
		return "resume_failed"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	parsed, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

// ParseOutcome converts a persisted outcome name back to an Outcome.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed":
		return OutcomeCompleted, nil
	case "stopped":
		return OutcomeStopped, nil
	case "resume_failed":
		return OutcomeResumeFailed, nil
	case "aborted":
		return OutcomeAborted, nil
	default:
		return OutcomeCompleted, fmt.Errorf("unknown outcome %q", s)
	}
}

// RunReport is everything one execution produced.
type RunReport struct {
	// ID is the history database identifier, zero until saved.
	ID int64 `json:"id,omitempty"`

	// Outcome is how the execution ended.
	Outcome Outcome `json:"outcome"`

	// Resumed is true when the execution continued from a checkpoint.
	Resumed bool `json:"resumed"`

	// ResumedFrom is the serialized path the run resumed after, if any.
	ResumedFrom string `json:"resumed_from,omitempty"`

	// StartLocation is where the view was when the run began.
	StartLocation Location `json:"start_location"`

	// OutputDir is where the run's files were written.
	OutputDir string `json:"output_dir"`

	// Visits, Failures and Denied are the records of this execution only.
	Visits   []VisitRecord   `json:"visits"`
	Failures []FailureRecord `json:"failures"`
	Denied   []DeniedRecord  `json:"denied"`

	// Stats aggregates counters and timings.
	Stats *RunStats `json:"stats"`

	// Error holds the message of a fatal error, if any.
	Error string `json:"error,omitempty"`

	// Artifacts lists the files written by the export pipeline.
	Artifacts []string `json:"artifacts,omitempty"`

	// Steps lists the export steps that ran.
	Steps []string `json:"steps,omitempty"`
}

// NewRunReport returns an empty report with fresh stats.
func NewRunReport() *RunReport {
	return &RunReport{
		Visits:   make([]VisitRecord, 0),
		Failures: make([]FailureRecord, 0),
		Denied:   make([]DeniedRecord, 0),
		Stats:    NewRunStats(),
	}
}

// VisitedNames returns the node names of all visits in record order.
func (r *RunReport) VisitedNames() []string {
	names := make([]string, len(r.Visits))
	for i, v := range r.Visits {
		names[i] = v.NodeName
	}
	return names
}

// AddArtifact records a written file once.
func (r *RunReport) AddArtifact(path string) {
	for _, a := range r.Artifacts {
		if a == path {
			return
		}
	}
	r.Artifacts = append(r.Artifacts, path)
}
