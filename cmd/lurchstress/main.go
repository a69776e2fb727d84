// Command lurchstress drives a lurchtable.Table or a treeset.Tree with a
// seeded, concurrent workload and verifies the structure afterwards. It
// exits non-zero when an operation fails unexpectedly or a check finds
// corruption.
//
//	lurchstress table --ordering access --limit 4096 --ops 1000000
//	lurchstress tree --config stress.yaml --metrics
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
