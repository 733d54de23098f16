package ui

import tea "github.com/charmbracelet/bubbletea"

// signal turns callbacks from fetch goroutines into Bubble Tea messages.
// Pokes coalesce: many changes between two renders produce one message.
type signal chan struct{}

func newSignal() signal { return make(signal, 1) }

func (s signal) poke() {
	select {
	case s <- struct{}{}:
	default:
	}
}

// wait returns a command that blocks until the next poke and then yields
// msg. It must be re-armed after every delivery.
func (s signal) wait(msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		<-s
		return msg
	}
}
