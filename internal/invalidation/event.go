// Package invalidation describes the events that tell the query cache its
// upstream data changed.
package invalidation

import (
	"fmt"
	"strings"
	"time"
)

// Event asks for the cached responses of one operation to be dropped. With
// Variables set only that response goes; without, every response of the
// operation does.
type Event struct {
	Version   int            `json:"version"`
	Op        string         `json:"op"`
	Operation string         `json:"operation"`
	Variables map[string]any `json:"variables,omitempty"`
	TS        time.Time      `json:"ts"`
	Source    string         `json:"source,omitempty"`
}

func (e Event) Validate() error {
	if e.Version != 1 {
		return fmt.Errorf("version must be 1")
	}
	switch e.Op {
	case "insert", "update", "delete":
	default:
		return fmt.Errorf("op must be insert|update|delete")
	}
	if strings.TrimSpace(e.Operation) == "" {
		return fmt.Errorf("operation is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// Whole reports whether the event targets every response of the operation.
func (e Event) Whole() bool { return len(e.Variables) == 0 }
