package controller

import "time"

// State is the phase the next Tick runs.
type State int

const (
	Idle State = iota
	Sampling
	Publishing
	Persisting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Sampling:
		return "Sampling"
	case Publishing:
		return "Publishing"
	case Persisting:
		return "Persisting"
	default:
		return "Unknown"
	}
}

// Pending is the work a sampling pass was started for.
type Pending struct {
	Respond bool // a held status request awaits the fresh readings
	Persist bool // the readings must be written to the log
}

// Flags is the four-flag view of the run state.
type Flags struct {
	ReadSensorsNext    bool
	FreshDataAvailable bool
	SendToClient       bool
	WriteToFile        bool
}

// RunState is the controller's mutable state between ticks.
type RunState struct {
	State      State
	Pending    Pending
	LastUpdate time.Time
	LastImage  time.Time
	ImagePath  string
	Hits       uint64
	LogFile    string
	Iteration  uint64
}

// Flags derives the four-flag view from the state and pending set.
func (rs RunState) Flags() Flags {
	return Flags{
		ReadSensorsNext:    rs.State == Sampling,
		FreshDataAvailable: rs.State == Publishing || rs.State == Persisting,
		SendToClient:       rs.Pending.Respond,
		WriteToFile:        rs.Pending.Persist,
	}
}

// next returns the state that follows fresh readings given what is pending.
func (p Pending) next() State {
	switch {
	case p.Respond:
		return Publishing
	case p.Persist:
		return Persisting
	default:
		return Idle
	}
}
