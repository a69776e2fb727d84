package main

import (
	"strconv"
	"sync/atomic"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/lurch"
	"github.com/hupe1980/lurch/hashing"
	"github.com/hupe1980/lurch/lurchtable"
	"github.com/hupe1980/lurch/testutil"
)

func stringHasher(name string, rng *testutil.RNG) hashing.Hasher[string] {
	switch name {
	case "xxhash":
		return hashing.XXHash[string]()
	case "siphash":
		return hashing.SipHash[string](rng.Uint64(), rng.Uint64())
	case "circlehash":
		return hashing.CircleHashString[string](rng.Uint64())
	default:
		return hashing.Maphash[string]()
	}
}

// runTable splits the workload across cfg.Workers goroutines. Every value
// equals its key's number, so a lookup returning anything else is corruption.
func runTable(cmd *cobra.Command, e *env) (report, error) {
	cfg := e.cfg
	rep := report{Workload: "table", Ops: cfg.Ops}
	ctx := cmd.Context()

	ordering, err := lurchtable.ParseOrdering(cfg.Table.Ordering)
	if err != nil {
		return rep, err
	}
	opts := []lurchtable.Option{
		lurchtable.WithHasher(stringHasher(cfg.Table.Hasher, e.rng)),
		lurchtable.WithLogger(e.logger),
		lurchtable.WithMetricsCollector(e.metrics),
		lurchtable.WithResourceController(e.rc),
	}
	// Without an ordering the table is unbounded and limit only sizes it.
	var tbl *lurchtable.Table[string, int]
	if ordering == lurchtable.None {
		tbl, err = lurchtable.NewWithCapacity[string, int](ordering, cfg.Table.Limit, opts...)
	} else {
		tbl, err = lurchtable.New[string, int](ordering, cfg.Table.Limit, opts...)
	}
	if err != nil {
		return rep, err
	}
	defer tbl.Close()

	keys, ops := e.workload()
	names := make([]string, cfg.Keyspace)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}

	var rejected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := range cfg.Workers {
		g.Go(func() error {
			for i := w; i < len(keys); i += cfg.Workers {
				if err := e.wait(gctx); err != nil {
					return err
				}
				k := keys[i]
				key := names[k]
				switch ops[i] {
				case testutil.OpGet:
					v, ok, err := tbl.TryGet(key)
					if err != nil {
						return err
					}
					if ok && v != k {
						return lurch.Corruption("key %s holds %d", key, v)
					}
				case testutil.OpSet:
					if err := tbl.Set(key, k); err != nil {
						if !overBudget(err) {
							return err
						}
						rejected.Add(1)
					}
				case testutil.OpDelete:
					if _, _, err := tbl.Remove(key); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	rep.Rejected = rejected.Load()
	rep.Len = tbl.Len()

	if ordering != lurchtable.None && rep.Len > cfg.Table.Limit {
		return rep, lurch.Corruption("table holds %d entries over its limit %d", rep.Len, cfg.Table.Limit)
	}
	if err := tbl.Verify(ctx); err != nil {
		return rep, err
	}

	st := tbl.Stats()
	e.logger.Info("table verified",
		"ordering", st.Ordering.String(),
		"buckets", st.Buckets,
		"stripes", st.Stripes,
		"pages", st.Pages,
		"used", st.Used,
		"recyclable", st.Recyclable,
		"bytes_reserved", st.BytesReserved,
	)
	return rep, nil
}
