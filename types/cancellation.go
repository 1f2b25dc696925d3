package types

import "sync"

// CancellationToken is the cooperative stop signal shared by a Runner,
// its pipeline and any attack modules. Setting it never kills in-flight
// connector attempts; checkpoints observe it between units of work.
type CancellationToken struct {
	once sync.Once
	ch   chan struct{}
}

// NewCancellationToken creates an unset token.
func NewCancellationToken() *CancellationToken {
	return &CancellationToken{ch: make(chan struct{})}
}

// Set fires the token. Idempotent.
func (t *CancellationToken) Set() {
	t.once.Do(func() { close(t.ch) })
}

// IsSet reports whether the token has fired.
func (t *CancellationToken) IsSet() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// Done exposes the token as a channel for select loops.
func (t *CancellationToken) Done() <-chan struct{} {
	return t.ch
}
