package pipeline

import "fmt"

// Stage is a state of a run. A successful run visits every stage in order.
type Stage int

const (
	Reading Stage = iota
	Parsing
	Deduplicating
	SchemaEnsure
	Loading
	Reporting
	Done
)

var stageNames = [...]string{
	Reading:       "reading",
	Parsing:       "parsing",
	Deduplicating: "deduplicating",
	SchemaEnsure:  "schema_ensure",
	Loading:       "loading",
	Reporting:     "reporting",
	Done:          "done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// StageError is a fatal error that stopped a run in Stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }
