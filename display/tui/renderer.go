package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
)

// Renderer forwards session instructions to a running program.
type Renderer struct {
	send func(tea.Msg)
}

// NewRenderer binds a renderer to p. Render blocks until the program reads
// the message, and returns immediately once p has exited.
func NewRenderer(p *tea.Program) *Renderer {
	return &Renderer{send: p.Send}
}

// Render implements dashboard.Renderer.
func (r *Renderer) Render(inst dashboard.Instruction) {
	r.send(instructionMsg{inst: inst})
}
