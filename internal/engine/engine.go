// Package engine defines the contract of the decode/convert/present engine that
// segment graphs are built on. Implementations live in sub-packages.
package engine

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a graph or stage.
type State int

const (
	StateVoidPending State = iota
	StateNull
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateVoidPending:
		return "VOID_PENDING"
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// StateChange is the outcome of a state transition request.
type StateChange int

const (
	StateChangeFailure StateChange = iota
	StateChangeSuccess
	StateChangeAsync
	StateChangeNoPreroll
)

func (r StateChange) String() string {
	switch r {
	case StateChangeFailure:
		return "FAILURE"
	case StateChangeSuccess:
		return "SUCCESS"
	case StateChangeAsync:
		return "ASYNC"
	case StateChangeNoPreroll:
		return "NO_PREROLL"
	default:
		return fmt.Sprintf("StateChange(%d)", int(r))
	}
}

// Engine parses graph descriptions into runnable graphs.
type Engine interface {
	// Init performs process-wide initialisation. It is safe to call repeatedly.
	Init() error

	// ParseGraph builds a graph from a textual description. A malformed
	// description yields a *ParseError.
	ParseGraph(description string) (Graph, error)
}

// Graph is a set of linked stages with a shared lifecycle.
type Graph interface {
	// Stage looks up a stage by name. The returned reference must be released.
	Stage(name string) (Stage, bool)

	// SetState requests a transition. An Async result resolves later; use State
	// to wait for it.
	SetState(target State) StateChange

	// State blocks until any pending transition resolves and reports its
	// outcome together with the current state.
	State() (StateChange, State)

	// QueryDuration reports the total media duration, if known.
	QueryDuration() (time.Duration, bool)

	// Bus returns the graph's message bus.
	Bus() Bus

	// Release drops the caller's reference to the graph. The graph must be in
	// StateNull before its last reference is released.
	Release()
}

// Stage is one named unit of work inside a graph.
type Stage interface {
	Name() string
	Kind() string

	// StaticPad returns an always-present pad such as "sink" or "src".
	StaticPad(name string) (Pad, bool)

	// OnPadAdded registers fn to run for every dynamically created pad.
	OnPadAdded(fn func(Stage, Pad))

	Release()
}

// Pad is a stage's connection point.
type Pad interface {
	Name() string
	Direction() PadDirection
	IsLinked() bool
	Link(peer Pad) error

	// CurrentCaps reports the caps negotiated on this pad, if any.
	CurrentCaps() (*Caps, bool)
}

// PadDirection tells whether a pad produces or consumes data.
type PadDirection int

const (
	PadSrc PadDirection = iota + 1
	PadSink
)

// Sink is implemented by buffering sink stages.
type Sink interface {
	Stage

	// TryPull returns the next queued sample, waiting at most timeout.
	TryPull(timeout time.Duration) (*Sample, bool)
}

// Sample is one decoded frame delivered to a sink.
type Sample struct {
	Caps *Caps
	PTS  time.Duration
	Data []byte
}

// Bus carries asynchronous messages posted by a graph.
type Bus interface {
	// Poll returns the first pending message of the given kind, waiting at most
	// timeout. A zero timeout only checks what is already queued.
	Poll(kind MessageKind, timeout time.Duration) (*Message, bool)
}

// MessageKind classifies bus messages.
type MessageKind int

const (
	MessageError MessageKind = 1 << iota
	MessageWarning
	MessageEOS
	MessageStateChanged
	MessageAny MessageKind = MessageError | MessageWarning | MessageEOS | MessageStateChanged
)

// Message is one bus message.
type Message struct {
	Kind   MessageKind
	Source string
	Text   string
	Debug  string
}

func (m *Message) Error() string {
	if m.Source == "" {
		return m.Text
	}
	return m.Source + ": " + m.Text
}
