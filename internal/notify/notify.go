// Package notify reports finished bounty jobs to the outside world.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mohtion/mohtion/internal/worker"
)

// Event is the wire form of a job outcome
type Event struct {
	Owner      string    `json:"owner"`
	Repo       string    `json:"repo"`
	Branch     string    `json:"branch"`
	Trigger    string    `json:"trigger,omitempty"`
	BountyID   string    `json:"bounty_id,omitempty"`
	Status     string    `json:"status"`
	File       string    `json:"file,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Severity   float64   `json:"severity,omitempty"`
	PRURL      string    `json:"pr_url,omitempty"`
	RetryCount int       `json:"retry_count,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Status values for jobs that produced no bounty
const (
	StatusSkipped = "skipped"
	StatusClean   = "clean"
	StatusError   = "error"
)

// NewEvent flattens an outcome
func NewEvent(o worker.Outcome, at time.Time) Event {
	e := Event{
		Owner:      o.Job.Owner,
		Repo:       o.Job.Repo,
		Branch:     o.Job.Branch,
		Trigger:    o.Job.Trigger,
		DurationMS: o.Duration.Milliseconds(),
		Timestamp:  at.UTC(),
	}
	switch {
	case o.Skipped != "":
		e.Status = StatusSkipped
		e.Error = o.Skipped
	case o.Bounty != nil:
		b := o.Bounty
		e.BountyID = b.ID
		e.Status = string(b.Status)
		e.File = b.Target.FilePath
		e.Kind = string(b.Target.Kind)
		e.Severity = b.Target.Severity
		e.PRURL = b.PRURL
		e.RetryCount = b.RetryCount
		e.Error = b.ErrorMessage
	case o.Err != nil:
		e.Status = StatusError
	default:
		e.Status = StatusClean
	}
	if o.Err != nil && e.Error == "" {
		e.Error = o.Err.Error()
	}
	return e
}

// Payload encodes an outcome as JSON
func Payload(o worker.Outcome, at time.Time) ([]byte, error) {
	return json.Marshal(NewEvent(o, at))
}

// LogNotifier writes outcomes to the log
type LogNotifier struct {
	log logrus.FieldLogger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(log logrus.FieldLogger) *LogNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogNotifier{log: log.WithField("component", "notify")}
}

// Notify logs the outcome
func (n *LogNotifier) Notify(_ context.Context, o worker.Outcome) error {
	e := NewEvent(o, time.Now())
	entry := n.log.WithFields(logrus.Fields{
		"repo":   e.Owner + "/" + e.Repo,
		"status": e.Status,
	})
	if e.BountyID != "" {
		entry = entry.WithField("bounty_id", e.BountyID)
	}
	if e.PRURL != "" {
		entry = entry.WithField("pr_url", e.PRURL)
	}
	if e.Error != "" {
		entry = entry.WithField("detail", e.Error)
	}
	entry.Info("bounty outcome")
	return nil
}

var _ worker.Notifier = (*LogNotifier)(nil)
