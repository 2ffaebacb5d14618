package telemetry

import (
	"context"
	"log"
	"time"
)

// asyncTimeout is the max time allowed for a single background write.
const asyncTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the servers stop before shutting down OTel providers,
// so in-flight async writes have time to complete. Must be >= asyncTimeout.
const ShutdownDrainDuration = asyncTimeout

// RunAsync runs fn in a goroutine with its own timeout so the caller is not blocked.
// The goroutine uses context.Background() so request cancellation does not abort the write.
// timeout <= 0 selects asyncTimeout. Errors are logged with name and passed to onErr when set.
func RunAsync(name string, timeout time.Duration, fn func(ctx context.Context) error, onErr func(error)) {
	if fn == nil {
		return
	}
	if timeout <= 0 {
		timeout = asyncTimeout
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			log.Printf("telemetry: async %s failed: %v", name, err)
			if onErr != nil {
				onErr(err)
			}
		}
	}()
}
