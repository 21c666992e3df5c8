// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Toggle      key.Binding
	Microphone  key.Binding
	Clear       key.Binding
	Sensitivity key.Binding
	Dimmer      key.Binding
	Contrast    key.Binding
	Flatter     key.Binding
	ZoomIn      key.Binding
	ZoomOut     key.Binding
	Gradient    key.Binding
	Scale       key.Binding
	Quit        key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Toggle:      key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "stop/start")),
		Microphone:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mic")),
		Clear:       key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Sensitivity: key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+/-", "sensitivity")),
		Dimmer:      key.NewBinding(key.WithKeys("-", "_")),
		Contrast:    key.NewBinding(key.WithKeys("]"), key.WithHelp("[/]", "contrast")),
		Flatter:     key.NewBinding(key.WithKeys("[")),
		ZoomIn:      key.NewBinding(key.WithKeys("z"), key.WithHelp("z/Z", "zoom")),
		ZoomOut:     key.NewBinding(key.WithKeys("Z")),
		Gradient:    key.NewBinding(key.WithKeys("g"), key.WithHelp("g", "colours")),
		Scale:       key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "lin/log")),
		Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Toggle, k.Microphone, k.Clear, k.Sensitivity, k.Contrast, k.ZoomIn, k.Gradient, k.Scale, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
