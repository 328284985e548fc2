package scheduler

import "fmt"

type State uint32

const (
	StateIdle State = iota
	StatePolling
	StateBackoff
	StateDisplaying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StatePolling:
		return "Polling"
	case StateBackoff:
		return "Backoff"
	case StateDisplaying:
		return "Displaying"
	}
	return fmt.Sprintf("State(%d)", s)
}
