package model

import (
	"time"

	"github.com/nao1215/treewalk/internal/treepath"
)

// TimestampLayout is the wall-clock format used in every persisted log.
const TimestampLayout = "2006-01-02 15:04:05"

// Failure reasons recorded by the traversal engine when no error text is available.
const (
	ReasonActivationFailed = "activation failed"
	ReasonNodeNotFound     = "node not found"
)

// VisitRecord is written exactly once per successfully visited node.
type VisitRecord struct {
	// Path is the node's address at the time of the visit.
	Path treepath.Path `json:"path"`

	// Level is the 0-based depth of the node.
	Level int `json:"level"`

	// NodeName is the display text that was activated.
	NodeName string `json:"node_name"`

	// URL is the document URL observed after activation.
	URL string `json:"url"`

	// Title is the document title observed after activation.
	// It is not part of the checkpoint columns and is empty for records
	// read back from the checkpoint log.
	Title string `json:"title,omitempty"`

	// VisitedAt is when the record was created.
	VisitedAt time.Time `json:"visited_at"`

	// ResponseLatency is the time the view took to report a ready document.
	ResponseLatency time.Duration `json:"response_latency"`
}

// FailureRecord describes a node that could not be activated.
type FailureRecord struct {
	NodeName  string    `json:"node_name"`
	Level     int       `json:"level"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// DeniedRecord describes a node whose content indicated missing permissions.
type DeniedRecord struct {
	NodeName  string    `json:"node_name"`
	Level     int       `json:"level"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Marker    string    `json:"marker"`
	Timestamp time.Time `json:"timestamp"`
}
