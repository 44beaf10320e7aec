package audio

import "sync/atomic"

// CommandCell is the single-slot shared cell described in spec §9: a full
// queue is unnecessary because only the latest command matters. The UI
// thread (or whoever drives the controller) posts into it; the render loop
// reads it once per iteration.
type CommandCell struct {
	v atomic.Int32
}

// NewCommandCell returns a cell initialized to Start.
func NewCommandCell() *CommandCell {
	c := &CommandCell{}
	c.v.Store(int32(CommandStart))
	return c
}

// Post stores a new command, overwriting whatever was there.
func (c *CommandCell) Post(cmd Command) {
	c.v.Store(int32(cmd))
}

// Load reads the current command.
func (c *CommandCell) Load() Command {
	return Command(c.v.Load())
}
