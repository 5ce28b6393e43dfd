package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ems/internal/session"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgFeedChanged MsgKind = iota
	MsgSessionChanged
	MsgActionDone
)

// feedChangedMsg is the constructor for [MsgFeedChanged]. It carries no items; the model
// reads the feed, so a dropped message loses nothing.
func feedChangedMsg() Msg {
	return Msg{kind: MsgFeedChanged}
}

// sessionChangedMsg is the constructor for [MsgSessionChanged]
func sessionChangedMsg(ev session.Event) Msg {
	return Msg{kind: MsgSessionChanged, data: ev}
}

// actionDoneMsg is the constructor for [MsgActionDone]
func actionDoneMsg(action string, err error) Msg {
	return Msg{
		kind: MsgActionDone,
		data: struct {
			action string
			err    error
		}{action, err},
	}
}
