package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/testutil"
	"github.com/hupe1980/lurch/treeset"
)

// runTree applies the workload from a single mutator, which is the only
// writer a tree allows, and hands a snapshot to the readers every
// cfg.Tree.SnapshotEvery operations.
func runTree(cmd *cobra.Command, e *env) (report, error) {
	cfg := e.cfg
	rep := report{Workload: "tree", Ops: cfg.Ops}
	ctx := cmd.Context()

	opts := []treeset.Option{
		treeset.WithLogger(e.logger),
		treeset.WithMetricsCollector(e.metrics),
		treeset.WithResourceController(e.rc),
	}
	if cfg.Tree.PageSize > 0 {
		opts = append(opts, treeset.WithPageSize(cfg.Tree.PageSize))
	}
	tree := treeset.NewOrdered[int](opts...)
	defer tree.Close()

	keys, ops := e.workload()
	snaps := make(chan *treeset.Snapshot[int], cfg.Tree.Readers)

	g, gctx := errgroup.WithContext(ctx)
	for range cfg.Tree.Readers {
		g.Go(func() error {
			for snap := range snaps {
				err := readSnapshot(gctx, snap)
				snap.Close()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	var rejected int64
	g.Go(func() error {
		defer close(snaps)
		every := cfg.Tree.SnapshotEvery
		for i, k := range keys {
			if err := e.wait(gctx); err != nil {
				return err
			}
			var err error
			switch ops[i] {
			case testutil.OpGet:
				tree.Contains(k)
			case testutil.OpSet:
				_, err = tree.Add(k)
			case testutil.OpDelete:
				_, _, err = tree.Remove(k)
			}
			if err != nil {
				if !overBudget(err) {
					return err
				}
				rejected++
			}

			if every > 0 && i%every == every-1 {
				snap, err := tree.Snapshot()
				if err != nil {
					return err
				}
				select {
				case snaps <- snap:
				case <-gctx.Done():
					snap.Close()
					return gctx.Err()
				}
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.Rejected = rejected
	rep.Len = tree.Len()

	freed := tree.Reclaim()
	if err := tree.Check(); err != nil {
		return rep, err
	}

	st := tree.Stats()
	e.logger.Info("tree checked",
		"freed", freed,
		"black_depth", st.BlackDepth,
		"generation", st.Generation,
		"retired", st.Retired,
		"free_nodes", st.FreeNodes,
		"pages", st.Pages,
		"used", st.Used,
		"bytes_reserved", st.BytesReserved,
	)
	return rep, nil
}

// readSnapshot walks snap in order and checks it against its own length and
// invariants.
func readSnapshot(ctx context.Context, snap *treeset.Snapshot[int]) error {
	n, prev := 0, 0
	for item, err := range snap.All() {
		if err != nil {
			return err
		}
		if n > 0 && item <= prev {
			return lurch.Corruption("generation %d: %d follows %d", snap.Generation(), item, prev)
		}
		prev = item
		n++
		if n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	if n != snap.Len() {
		return lurch.Corruption("generation %d: walked %d items, want %d", snap.Generation(), n, snap.Len())
	}
	return snap.Check()
}
