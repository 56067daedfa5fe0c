// Package typing turns local keystroke activity into at most one
// "typing started" signal per burst, followed by a "typing stopped" signal
// once the input has been quiet for a fixed period.
package typing

import (
	"time"

	"github.com/ageniuscoder/mmchat/client/internal/clock"
)

const DefaultQuietPeriod = 3 * time.Second

type State int

const (
	Idle State = iota
	Signaled
)

func (s State) String() string {
	if s == Signaled {
		return "signaled"
	}
	return "idle"
}

// Controller is not safe for concurrent use. It is owned by a single loop;
// timer expiry is delivered back to that loop through post.
type Controller struct {
	clock clock.Clock
	quiet time.Duration
	emit  func(typing bool)
	post  func(func())

	state State
	timer clock.Timer
	gen   uint64
}

// New builds a controller. emit sends the outbound typing frame. post
// schedules a function on the owning loop; nil runs timer callbacks inline.
func New(c clock.Clock, quiet time.Duration, emit func(bool), post func(func())) *Controller {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	if post == nil {
		post = func(f func()) { f() }
	}
	return &Controller{clock: c, quiet: quiet, emit: emit, post: post}
}

func (c *Controller) State() State { return c.state }

// Keystroke records a qualifying key press (anything but the commit key).
func (c *Controller) Keystroke() {
	if c.state == Idle {
		c.emit(true)
		c.state = Signaled
	}
	c.rearm()
}

// Commit is called when the message is submitted. The message frame itself
// clears the remote indicator, so no stop frame is sent.
func (c *Controller) Commit() {
	c.cancel()
	c.state = Idle
}

// Stop cancels any pending timer without emitting. Used on teardown.
func (c *Controller) Stop() {
	c.cancel()
	c.state = Idle
}

func (c *Controller) rearm() {
	c.cancel()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.quiet, func() {
		c.post(func() { c.expire(gen) })
	})
}

func (c *Controller) cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// expire ignores fires from timers that were superseded after they had
// already been queued on the loop.
func (c *Controller) expire(gen uint64) {
	if gen != c.gen || c.state != Signaled {
		return
	}
	c.timer = nil
	c.state = Idle
	c.emit(false)
}
