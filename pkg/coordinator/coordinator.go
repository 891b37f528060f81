// Package coordinator gives a Task a narrow, thread-unsafe-by-design
// handle for requesting the two things only the run loop can act on:
// an out-of-cycle commit, or a graceful shutdown. It is only ever
// touched from the task's own goroutine (the run loop's goroutine),
// so it carries no synchronization of its own.
package coordinator

// Coordinator is passed to Task.Process and Task.Window so user code
// can request a commit or shutdown without reaching into the run
// loop's internals.
type Coordinator struct {
	commitRequested   bool
	shutdownRequested bool
}

// New returns a Coordinator with no pending requests.
func New() *Coordinator {
	return &Coordinator{}
}

// RequestCommit asks the run loop to commit at the end of the current
// envelope/window cycle, ahead of the regular commit interval.
func (c *Coordinator) RequestCommit() {
	c.commitRequested = true
}

// RequestShutdown asks the run loop to drain (send + commit) and then
// exit after the current cycle, honored only once any in-flight send
// and commit complete.
func (c *Coordinator) RequestShutdown() {
	c.shutdownRequested = true
}

// CommitRequested reports and clears the pending commit request.
func (c *Coordinator) CommitRequested() bool {
	v := c.commitRequested
	c.commitRequested = false
	return v
}

// ShutdownRequested reports whether shutdown has been requested. Unlike
// CommitRequested this is not cleared by reading it — once requested,
// shutdown is a one-way trip for the remainder of the container's life.
func (c *Coordinator) ShutdownRequested() bool {
	return c.shutdownRequested
}
