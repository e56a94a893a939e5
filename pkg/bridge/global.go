package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/morezero/sdk-bridge/pkg/native"
)

const globalLogPrefix = "bridge:global"

var (
	// ErrNotInitialized is returned by Default before Init.
	ErrNotInitialized = errors.New("bridge not initialized")
	// ErrAlreadyInitialized is returned by a second Init without Shutdown.
	ErrAlreadyInitialized = errors.New("bridge already initialized")
)

var (
	globalMu sync.Mutex
	global   *Bridge
)

// Init creates the process-wide bridge.
func Init(nb native.Bridge, opts *Options) (*Bridge, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global != nil {
		return nil, ErrAlreadyInitialized
	}
	global = New(nb, opts)
	slog.Info(fmt.Sprintf("%s - process bridge initialized", globalLogPrefix))
	return global, nil
}

// Default returns the process-wide bridge.
func Default() (*Bridge, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if global == nil {
		return nil, ErrNotInitialized
	}
	return global, nil
}

// Shutdown closes the process-wide bridge. It is a no-op before Init.
func Shutdown(ctx context.Context) error {
	globalMu.Lock()
	b := global
	global = nil
	globalMu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close(ctx)
}
