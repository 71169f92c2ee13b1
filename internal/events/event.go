package events

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"file_manager/types"
)

type Event struct {
	Name      types.EventName
	Data      map[string]any
	Timestamp time.Time
}

func New(name types.EventName, data map[string]any) Event {
	return Event{Name: name, Data: data, Timestamp: time.Now()}
}

// MarshalJSON flattens Data next to the event name and a unix-millisecond
// timestamp: {"event":"file_uploaded","filename":"a.txt","timestamp":1700000000000}.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Data)+2)
	maps.Copy(flat, e.Data)
	flat["event"] = e.Name
	flat["timestamp"] = e.Timestamp.UnixMilli()
	return json.Marshal(flat)
}

func (e *Event) UnmarshalJSON(b []byte) error {
	var flat map[string]any
	if err := json.Unmarshal(b, &flat); err != nil {
		return err
	}

	name, ok := flat["event"].(string)
	if !ok || name == "" {
		return fmt.Errorf("event name missing")
	}
	delete(flat, "event")

	var ts time.Time
	if ms, ok := flat["timestamp"].(float64); ok {
		ts = time.UnixMilli(int64(ms))
	}
	delete(flat, "timestamp")

	e.Name = types.EventName(name)
	e.Data = flat
	e.Timestamp = ts
	return nil
}
