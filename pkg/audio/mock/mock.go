// Package mock provides in-memory mock implementations of the [audio.Platform]
// and [audio.Connection] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// Typical usage:
//
//	conn := &mock.Connection{}
//	platform := &mock.Platform{ConnectResult: conn}
//	got, err := platform.Connect(ctx, "guild-1", "channel-42")
//	...
//	conn.EmitDisconnect() // simulate a kick
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxplay/pkg/audio"
)

// defaultOutputBuffer is the capacity of the output channel a Connection
// creates when OutputStreamResult is nil.
const defaultOutputBuffer = 1024

// ─── Connection ───────────────────────────────────────────────────────────────

// Connection is a mock implementation of [audio.Connection].
// Set the exported Result fields before use; inspect the Call* fields after.
type Connection struct {
	mu sync.Mutex

	// OutputStreamResult is returned by [Connection.OutputStream]. If nil, a
	// buffered channel is created on first use; read it via [Connection.Output].
	OutputStreamResult chan audio.AudioFrame

	// DisconnectError is returned by [Connection.Disconnect].
	DisconnectError error

	// CallCountOutputStream records how many times OutputStream was called.
	CallCountOutputStream int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	// CallCountOnDisconnect records how many times OnDisconnect was called.
	CallCountOnDisconnect int

	// RecordedCallbacks holds the callbacks registered via OnDisconnect, in
	// order of registration.
	RecordedCallbacks []func()
}

// OutputStream implements [audio.Connection].
func (c *Connection) OutputStream() chan<- audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOutputStream++
	return c.outputLocked()
}

// Output returns the read side of the output stream so tests can observe the
// frames a player wrote.
func (c *Connection) Output() <-chan audio.AudioFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outputLocked()
}

func (c *Connection) outputLocked() chan audio.AudioFrame {
	if c.OutputStreamResult == nil {
		c.OutputStreamResult = make(chan audio.AudioFrame, defaultOutputBuffer)
	}
	return c.OutputStreamResult
}

// OnDisconnect implements [audio.Connection]. The callback is appended to
// RecordedCallbacks. To simulate an external severance, call
// [Connection.EmitDisconnect].
func (c *Connection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountOnDisconnect++
	c.RecordedCallbacks = append(c.RecordedCallbacks, cb)
}

// Disconnect implements [audio.Connection]. Returns DisconnectError.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountDisconnect++
	return c.DisconnectError
}

// Disconnects returns how many times Disconnect was called.
func (c *Connection) Disconnects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CallCountDisconnect
}

// EmitDisconnect calls all registered OnDisconnect callbacks.
func (c *Connection) EmitDisconnect() {
	c.mu.Lock()
	cbs := make([]func(), len(c.RecordedCallbacks))
	copy(cbs, c.RecordedCallbacks)
	c.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// ConnectCall records the arguments of a single [Platform.Connect] invocation.
type ConnectCall struct {
	// RoomID is the roomID argument passed to Connect.
	RoomID string
	// ChannelID is the channelID argument passed to Connect.
	ChannelID string
}

// Platform is a mock implementation of [audio.Platform].
type Platform struct {
	mu sync.Mutex

	// ConnectFunc, if set, is called instead of returning ConnectResult and
	// ConnectError. Use it to hand out a fresh Connection per call.
	ConnectFunc func(ctx context.Context, roomID, channelID string) (audio.Connection, error)

	// ConnectResult is the [audio.Connection] returned by Connect.
	ConnectResult audio.Connection

	// ConnectError is the error returned by Connect.
	ConnectError error

	// ConnectCalls records all Connect invocations.
	ConnectCalls []ConnectCall
}

// Connect implements [audio.Platform]. Records the call and returns
// ConnectResult / ConnectError, or delegates to ConnectFunc.
func (p *Platform) Connect(ctx context.Context, roomID, channelID string) (audio.Connection, error) {
	p.mu.Lock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{RoomID: roomID, ChannelID: channelID})
	fn, res, err := p.ConnectFunc, p.ConnectResult, p.ConnectError
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, roomID, channelID)
	}
	return res, err
}

// Calls returns a copy of the recorded Connect invocations.
func (p *Platform) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}
