package tracing

import (
	"encoding/json"
	"fmt"
)

// EntryKind is the type of a trace entry.
type EntryKind string

// The kinds of trace entries.
const (
	KindStage  EntryKind = "Stage"
	KindRecord EntryKind = "Record"
	KindEvent  EntryKind = "Event"
)

// An Entry is one object of the trace. Stage entries describe the pipeline,
// Record entries introduce a traced instruction and Event entries place a
// traced instruction in a stage at a cycle.
type Entry struct {
	Kind        EntryKind
	ID          uint64
	Description string
	Disassembly string
	Cycle       uint64
	Stage       Stage
}

type stageJSON struct {
	Type        EntryKind `json:"type"`
	ID          uint64    `json:"id"`
	Description string    `json:"description"`
}

type recordJSON struct {
	Type        EntryKind `json:"type"`
	ID          uint64    `json:"id"`
	Disassembly string    `json:"disassembly"`
}

type eventJSON struct {
	Type  EntryKind `json:"type"`
	ID    uint64    `json:"id"`
	Cycle uint64    `json:"cycle"`
	Stage Stage     `json:"stage"`
}

// MarshalJSON writes only the fields that belong to the kind of the entry.
func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case KindStage:
		return json.Marshal(stageJSON{e.Kind, e.ID, e.Description})
	case KindRecord:
		return json.Marshal(recordJSON{e.Kind, e.ID, e.Disassembly})
	case KindEvent:
		return json.Marshal(eventJSON{e.Kind, e.ID, e.Cycle, e.Stage})
	default:
		return nil, fmt.Errorf("unknown trace entry kind %q", e.Kind)
	}
}
