package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	up      key.Binding
	down    key.Binding
	read    key.Binding
	readAll key.Binding
	refresh key.Binding
	logout  key.Binding
	quit    key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		read:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "mark read")),
		readAll: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "mark all read")),
		refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		logout:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "log out")),
		quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.read, k.readAll, k.refresh, k.logout, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.up, k.down, k.read},
		{k.readAll, k.refresh},
		{k.logout, k.quit},
	}
}
