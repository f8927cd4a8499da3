package agent

// State is the assistant's externally visible turn state.
type State string

const (
	StateIdle       State = "idle"
	StateThinking   State = "thinking"
	StateSearching  State = "searching"
	StateResponding State = "responding"
)

// Event is either a StateEvent or a SpeechEvent.
type Event interface {
	isEvent()
}

type StateEvent struct {
	State State `json:"state"`
}

// SpeechEvent carries a reply fragment, or the whole reply when IsFinal is set.
type SpeechEvent struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

func (StateEvent) isEvent()  {}
func (SpeechEvent) isEvent() {}
