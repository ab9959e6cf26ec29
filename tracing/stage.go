package tracing

// Stage identifies a pipeline stage in the trace.
type Stage int

// The pipeline stages. Writeback is terminal: an instruction that reaches it
// retires from the trace.
const (
	StageFetch Stage = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback
)

// terminalStage is the last stage an instruction can be traced in.
const terminalStage = StageWriteback

var stageNames = []string{
	"Fetch",
	"Decode",
	"Execute",
	"Memory",
	"Writeback",
}

// Stages returns all the stages in pipeline order.
func Stages() []Stage {
	list := make([]Stage, 0, len(stageNames))
	for i := range stageNames {
		list = append(list, Stage(i))
	}

	return list
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "Unknown"
	}

	return stageNames[s]
}

// IsTerminal tells if instructions retire at this stage.
func (s Stage) IsTerminal() bool {
	return s == terminalStage
}
