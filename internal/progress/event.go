package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
)

// Type classifies an Event.
type Type string

// Event types. Every processed item yields a log or error event; a run ends with done.
const (
	TypeLog   Type = "log"
	TypeError Type = "error"
	TypeDone  Type = "done"
)

// Event is one progress message from a run.
type Event struct {
	RunID   string       `json:"run_id"`
	TS      time.Time    `json:"ts"`
	Type    Type         `json:"type"`
	Source  string       `json:"source,omitempty"`
	Stage   ingest.Stage `json:"stage,omitempty"`
	// Item identifies the page, creator or media item the event is about.
	Item    string `json:"item,omitempty"`
	URL     string `json:"url,omitempty"`
	// Kind is the error taxonomy label for error events.
	Kind    string            `json:"kind,omitempty"`
	Message string            `json:"message"`
	Dur     time.Duration     `json:"-"`
	Report  *ingest.RunReport `json:"report,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Type {
	case TypeLog, TypeError:
		if e.Message == "" {
			return fmt.Errorf("%s event requires a message", e.Type)
		}
	case TypeDone:
		if e.Report == nil {
			return errors.New("done event requires a report")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}
