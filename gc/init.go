package gc

import "sync"

var (
	defaultMu     sync.Mutex
	defaultRegion *Region
)

// Init configures the process-wide default region. It may be called once,
// before first use of Default; later calls return ErrAlreadyInitialized.
func Init(cfg Config) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegion != nil {
		return ErrAlreadyInitialized
	}
	defaultRegion = NewRegion(cfg)
	return nil
}

// Default returns the process-wide region, initializing it with
// DefaultConfig if Init was never called.
func Default() *Region {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRegion == nil {
		defaultRegion = NewRegion(DefaultConfig())
	}
	return defaultRegion
}
