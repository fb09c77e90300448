package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Op names the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// AllTables subscribes a callback to every table.
const AllTables = "*"

// Event describes one committed row change.
type Event struct {
	Table string `json:"table"`
	Op    Op     `json:"op"`
	ID    string `json:"id,omitempty"`
}

// ParseEvent decodes a NOTIFY payload produced by the table_changes trigger.
func ParseEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, fmt.Errorf("decode change payload: %w", err)
	}
	ev.Table = strings.TrimSpace(ev.Table)
	if ev.Table == "" {
		return Event{}, fmt.Errorf("change payload missing table")
	}
	ev.Op = Op(strings.ToUpper(string(ev.Op)))
	return ev, nil
}
