// ABOUTME: Process-wide default stack with lazy one-time construction
package stack

import "sync"

var (
	defaultMu    sync.RWMutex
	defaultStack *DataStack
)

// Default returns the process default stack. Without a prior SetDefault an
// in-memory stack is built lazily, exactly once, under the write barrier.
// The lazy default is not opened; register schemas and call Open before use.
func Default() *DataStack {
	defaultMu.RLock()
	ds := defaultStack
	defaultMu.RUnlock()
	if ds != nil {
		return ds
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultStack == nil {
		defaultStack = New(Options{})
	}
	return defaultStack
}

// SetDefault replaces the process default stack. Later Default calls observe
// the replacement; callers holding the previous stack keep using it.
func SetDefault(ds *DataStack) {
	defaultMu.Lock()
	defaultStack = ds
	defaultMu.Unlock()
}
