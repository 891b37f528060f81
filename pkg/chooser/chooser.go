// Package chooser implements the MessageChooser contract: given a set
// of registered SystemStreamPartitions with buffered envelopes, decide
// which one the run loop processes next.
package chooser

import (
	"sync"

	"github.com/cuemby/streamcontainer/pkg/model"
)

// Chooser selects the next envelope to deliver to a task across all
// registered SSPs. Register is called once per SSP at startup; Update
// is called whenever a consumer makes a new envelope available for an
// SSP; Choose is called by the run loop to pick the next envelope.
type Chooser interface {
	Register(ssp model.SSP, startOffset model.Offset)
	Update(env model.Envelope)
	Choose() (model.Envelope, bool)
}

// SubChooser orders envelopes within a single system. FIFOSubChooser,
// the default, returns the pending envelope of the SSP that was first
// updated longest ago within that system (oldest pending envelope first).
type SubChooser interface {
	Update(env model.Envelope)
	Choose() (model.Envelope, bool)
}

// FIFOSubChooser holds at most one pending envelope per SSP (a second
// Update for the same SSP replaces the first) and picks the one whose
// SSP was updated longest ago, preserving submission
// order within a system when every SSP has at most one envelope
// outstanding at a time (the Multiplexer's contract).
type FIFOSubChooser struct {
	order   []model.SSP
	pending map[model.SSP]model.Envelope
}

func NewFIFOSubChooser() *FIFOSubChooser {
	return &FIFOSubChooser{pending: make(map[model.SSP]model.Envelope)}
}

func (c *FIFOSubChooser) Update(env model.Envelope) {
	if _, exists := c.pending[env.SSP]; !exists {
		c.order = append(c.order, env.SSP)
	}
	c.pending[env.SSP] = env
}

func (c *FIFOSubChooser) Choose() (model.Envelope, bool) {
	for len(c.order) > 0 {
		ssp := c.order[0]
		c.order = c.order[1:]
		if env, ok := c.pending[ssp]; ok {
			delete(c.pending, ssp)
			return env, true
		}
	}
	return model.Envelope{}, false
}

// RoundRobinChooser round-robins across registered systems and, within
// a system, delegates ordering to a SubChooser. Systems are visited in
// registration order, which gives deterministic behavior in tests.
type RoundRobinChooser struct {
	mu sync.Mutex

	newSubChooser func() SubChooser
	systemOrder   []string
	systems       map[string]SubChooser
	nextIdx       int
}

// NewRoundRobinChooser returns a Chooser whose SubChoosers are created
// by newSub. If newSub is nil, each system gets a FIFOSubChooser.
func NewRoundRobinChooser(newSub func() SubChooser) *RoundRobinChooser {
	if newSub == nil {
		newSub = func() SubChooser { return NewFIFOSubChooser() }
	}
	return &RoundRobinChooser{
		newSubChooser: newSub,
		systems:       make(map[string]SubChooser),
	}
}

func (c *RoundRobinChooser) Register(ssp model.SSP, _ model.Offset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSystem(ssp.System)
}

func (c *RoundRobinChooser) ensureSystem(system string) SubChooser {
	sub, ok := c.systems[system]
	if !ok {
		sub = c.newSubChooser()
		c.systems[system] = sub
		c.systemOrder = append(c.systemOrder, system)
	}
	return sub
}

func (c *RoundRobinChooser) Update(env model.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureSystem(env.SSP.System).Update(env)
}

func (c *RoundRobinChooser) Choose() (model.Envelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.systemOrder)
	for i := 0; i < n; i++ {
		idx := (c.nextIdx + i) % n
		system := c.systemOrder[idx]
		if env, ok := c.systems[system].Choose(); ok {
			c.nextIdx = (idx + 1) % n
			return env, true
		}
	}
	return model.Envelope{}, false
}
