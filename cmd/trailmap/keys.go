package main

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up          key.Binding
	Down        key.Binding
	Focus       key.Binding
	Select      key.Binding
	Marker      key.Binding
	Search      key.Binding
	ClearStop   key.Binding
	CloseCard   key.Binding
	Sidebar     key.Binding
	TrailList   key.Binding
	RadiusUp    key.Binding
	RadiusDown  key.Binding
	Difficulty  key.Binding
	Circular    key.Binding
	LongerHike  key.Binding
	ShorterHike key.Binding
	Rediscover  key.Binding
	Help        key.Binding
	Quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:          key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:        key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Focus:       key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch pane")),
		Select:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Marker:      key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "tap marker")),
		Search:      key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "search trails")),
		ClearStop:   key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "clear stop")),
		CloseCard:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close card")),
		Sidebar:     key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "sidebar")),
		TrailList:   key.NewBinding(key.WithKeys("l"), key.WithHelp("l", "trail list")),
		RadiusUp:    key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "radius")),
		RadiusDown:  key.NewBinding(key.WithKeys("-")),
		Difficulty:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "difficulty")),
		Circular:    key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "loops only")),
		LongerHike:  key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "max duration")),
		ShorterHike: key.NewBinding(key.WithKeys("[")),
		Rediscover:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload stops")),
		Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.Select, k.Search, k.CloseCard, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Focus, k.Select, k.Marker},
		{k.Search, k.ClearStop, k.CloseCard, k.Sidebar, k.TrailList},
		{k.RadiusUp, k.Difficulty, k.Circular, k.LongerHike, k.Rediscover},
		{k.Help, k.Quit},
	}
}
