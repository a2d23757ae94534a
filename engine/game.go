package engine

import (
	"github.com/spaghettifunk/lumen/engine/core"
)

// Game describes an application: its configuration and the layers it runs.
type Game struct {
	Config *core.Config
	Layers []Layer
}

func NewGame(config *core.Config, layers ...Layer) *Game {
	if config == nil {
		config = core.DefaultConfig()
	}
	return &Game{Config: config, Layers: layers}
}

// PushLayer appends l. Layers pushed after the engine is initialized are never attached.
func (g *Game) PushLayer(l Layer) {
	g.Layers = append(g.Layers, l)
}

func (g *Game) updaters() []Updater {
	var out []Updater
	for _, l := range g.Layers {
		if u, ok := l.(Updater); ok {
			out = append(out, u)
		}
	}
	return out
}

func (g *Game) submitters() []Submitter {
	var out []Submitter
	for _, l := range g.Layers {
		if s, ok := l.(Submitter); ok {
			out = append(out, s)
		}
	}
	return out
}

func (g *Game) resizers() []Resizer {
	var out []Resizer
	for _, l := range g.Layers {
		if r, ok := l.(Resizer); ok {
			out = append(out, r)
		}
	}
	return out
}

// eventHandlers are returned last attached first.
func (g *Game) eventHandlers() []EventHandler {
	var out []EventHandler
	for i := len(g.Layers) - 1; i >= 0; i-- {
		if h, ok := g.Layers[i].(EventHandler); ok {
			out = append(out, h)
		}
	}
	return out
}
