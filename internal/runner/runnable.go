package runner

import "context"

// Runnable is a long-lived component driven by a context.
type Runnable interface {
	// Run blocks until ctx is cancelled or the component fails, then returns
	Run(ctx context.Context) error
}
