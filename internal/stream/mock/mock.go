// Package mock provides an in-memory [stream.Provider] for unit tests along
// with helpers that build PCM resources of controllable length.
package mock

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MrWong99/voxplay/internal/stream"
	"github.com/MrWong99/voxplay/pkg/audio"
)

// Provider is a mock implementation of [stream.Provider].
// Set the exported fields before use; inspect the Calls accessors after.
type Provider struct {
	mu sync.Mutex

	// ValidateFunc, if set, decides Validate's result. Otherwise
	// ValidateError is returned.
	ValidateFunc  func(track string) error
	ValidateError error

	// ResolveFunc, if set, decides Resolve's result. Otherwise ResolveError
	// is returned, or, when nil, a Resource backed by [Endless].
	ResolveFunc  func(ctx context.Context, track string) (*stream.Resource, error)
	ResolveError error

	validateCalls []string
	resolveCalls  []string
}

// Compile-time interface assertion.
var _ stream.Provider = (*Provider)(nil)

// Validate implements [stream.Provider].
func (p *Provider) Validate(track string) error {
	p.mu.Lock()
	p.validateCalls = append(p.validateCalls, track)
	fn, err := p.ValidateFunc, p.ValidateError
	p.mu.Unlock()
	if fn != nil {
		return fn(track)
	}
	return err
}

// Resolve implements [stream.Provider].
func (p *Provider) Resolve(ctx context.Context, track string) (*stream.Resource, error) {
	p.mu.Lock()
	p.resolveCalls = append(p.resolveCalls, track)
	fn, err := p.ResolveFunc, p.ResolveError
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, track)
	}
	if err != nil {
		return nil, err
	}
	return &stream.Resource{ReadCloser: Endless(), Track: track, Backend: "mock"}, nil
}

// ValidateCalls returns the tracks passed to Validate, in order.
func (p *Provider) ValidateCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.validateCalls...)
}

// ResolveCalls returns the tracks passed to Resolve, in order.
func (p *Provider) ResolveCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.resolveCalls...)
}

// Frames returns a resource that yields n frames of silence and then EOF.
func Frames(n int) io.ReadCloser {
	return io.NopCloser(bytes.NewReader(make([]byte, n*audio.FrameBytes)))
}

// Endless returns a resource that yields silence until it is closed.
func Endless() io.ReadCloser {
	return &endless{done: make(chan struct{})}
}

type endless struct {
	done chan struct{}
	once sync.Once
}

func (e *endless) Read(b []byte) (int, error) {
	select {
	case <-e.done:
		return 0, io.ErrClosedPipe
	default:
	}
	clear(b)
	return len(b), nil
}

func (e *endless) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}
