package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap implements help.KeyMap.
type keyMap struct {
	Compare    key.Binding
	Matrix     key.Binding
	KMeans     key.Binding
	Regression key.Binding
	Image      key.Binding
	SizeDown   key.Binding
	SizeUp     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// ShortHelp is the footer shown by default.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Compare, k.Matrix, k.SizeUp, k.Help, k.Quit}
}

// FullHelp is shown after pressing ?.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Compare, k.Matrix, k.KMeans, k.Regression, k.Image},
		{k.SizeDown, k.SizeUp},
		{k.Help, k.Quit},
	}
}

var keys = keyMap{
	Compare:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "compare gpu/cpu")),
	Matrix:     key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "matrix")),
	KMeans:     key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "k-means")),
	Regression: key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "regression")),
	Image:      key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "image")),
	SizeDown:   key.NewBinding(key.WithKeys("[", "-"), key.WithHelp("[", "smaller matrix")),
	SizeUp:     key.NewBinding(key.WithKeys("]", "+"), key.WithHelp("]", "larger matrix")),
	Help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:       key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

// Bindings lists every dashboard key binding in help order.
func Bindings() []key.Binding {
	var out []key.Binding
	for _, group := range keys.FullHelp() {
		out = append(out, group...)
	}
	return out
}
