package util

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by Latest.Do when a newer call started before this one finished.
var ErrSuperseded = errors.New("superseded by a newer request")

// Latest runs calls with last-write-wins semantics: starting a call cancels the
// context of the previous one, and only the newest call may commit its result.
type Latest struct {
	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// Do runs fetch under a cancellable context. If fetch succeeds and no newer call
// has started, commit runs while the caller still holds the generation, so a
// stale result can never overwrite a fresher one.
func (l *Latest) Do(ctx context.Context, fetch func(ctx context.Context) error, commit func()) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.mu.Unlock()

	defer cancel()

	err := fetch(runCtx)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return ErrSuperseded
	}
	l.cancel = nil
	if err != nil {
		return err
	}
	if commit != nil {
		commit()
	}
	return nil
}
