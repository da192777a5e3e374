// File: internal/browser/context.go
package browser

import "context"

// CombineContext merges two context lifecycles. The returned context derives
// from parentCtx (inheriting its values, required for CDP target routing) and
// is additionally canceled when secondaryCtx ends.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
