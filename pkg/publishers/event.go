package publishers

import (
	"time"

	"github.com/google/uuid"

	"github.com/samvad-hq/samvad-news-feed/internal/domain"
)

// Event types emitted after a refresh run.
const (
	EventRefreshCompleted = "refresh.completed"
	EventRefreshFailed    = "refresh.failed"
)

// PartitionFailure is the wire form of a failed partition.
type PartitionFailure struct {
	ProviderID string `json:"provider_id"`
	Category   string `json:"category"`
	Country    string `json:"country"`
	Error      string `json:"error"`
}

// Event represents the payload published downstream.
type Event struct {
	ID              string              `json:"id"`
	Type            string              `json:"type"`
	Trigger         string              `json:"trigger"`
	Stats           domain.RefreshStats `json:"stats"`
	DurationMs      int64               `json:"duration_ms"`
	PartitionErrors []PartitionFailure  `json:"partition_errors,omitempty"`
	Error           string              `json:"error,omitempty"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
}

// NewRefreshEvent constructs the event for one finished refresh run. A non-nil runErr marks it failed.
func NewRefreshEvent(trigger string, stats domain.RefreshStats, partitionErrs []domain.PartitionError, runErr error, startedAt time.Time) Event {
	evt := Event{
		ID:         uuid.NewString(),
		Type:       EventRefreshCompleted,
		Trigger:    trigger,
		Stats:      stats,
		DurationMs: stats.Duration.Milliseconds(),
		StartedAt:  startedAt.UTC(),
		FinishedAt: startedAt.Add(stats.Duration).UTC(),
	}
	if runErr != nil {
		evt.Type = EventRefreshFailed
		evt.Error = runErr.Error()
	}
	for _, pe := range partitionErrs {
		msg := ""
		if pe.Err != nil {
			msg = pe.Err.Error()
		}
		evt.PartitionErrors = append(evt.PartitionErrors, PartitionFailure{
			ProviderID: pe.ProviderID,
			Category:   pe.Category,
			Country:    pe.Country,
			Error:      msg,
		})
	}
	return evt
}

// attributes are routing hints attached by queue sinks.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type": e.Type,
		"trigger":    e.Trigger,
	}
}
