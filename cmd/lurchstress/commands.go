package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	def := DefaultConfig()

	root := &cobra.Command{
		Use:          "lurchstress",
		Short:        "Stress and verify lurch collections",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringP("config", "c", "", "YAML config file; flags override its values")
	pf.Int64("seed", def.Seed, "workload seed")
	pf.Int("workers", def.Workers, "concurrent table workers")
	pf.Int("ops", def.Ops, "total operations")
	pf.Int("keyspace", def.Keyspace, "number of distinct keys")
	pf.Float64("read-ratio", def.ReadRatio, "fraction of lookups")
	pf.Float64("zipf", def.Zipf, "zipf exponent of the key distribution, 0 for uniform")
	pf.Float64("rate", def.Rate, "operations per second, 0 for unthrottled")
	pf.Int64("memory-limit", def.MemoryLimit, "slab memory budget in bytes, 0 for unlimited")
	pf.String("log-level", def.LogLevel, "debug, info, warn or error")
	pf.String("log-format", def.LogFormat, "text or json")
	pf.Bool("metrics", def.Metrics, "print Prometheus metrics after the run")

	root.AddCommand(newTableCmd(def), newTreeCmd(def))
	return root
}

func newTableCmd(def Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Run concurrent lookups, sets and removes against a bounded table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, runTable)
		},
	}
	f := cmd.Flags()
	f.String("ordering", def.Table.Ordering, "none, insertion, modified or access")
	f.Int("limit", def.Table.Limit, "entry limit, or a size hint with ordering none")
	f.String("hasher", def.Table.Hasher, "maphash, xxhash, siphash or circlehash")
	return cmd
}

func newTreeCmd(def Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Mutate a tree while concurrent readers check its snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, runTree)
		},
	}
	f := cmd.Flags()
	f.Int("page-size", def.Tree.PageSize, "nodes per slab page, 0 for the default")
	f.Int("snapshot-every", def.Tree.SnapshotEvery, "operations between snapshots, 0 for none")
	f.Int("readers", def.Tree.Readers, "concurrent snapshot readers")
	return cmd
}

func run(cmd *cobra.Command, workload func(*cobra.Command, *env) (report, error)) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}
	e, err := newEnv(cfg)
	if err != nil {
		return err
	}

	start := time.Now()
	rep, err := workload(cmd, e)
	rep.Elapsed = time.Since(start)
	if err != nil {
		e.logger.Error("stress run failed", "workload", rep.Workload, "error", err)
		return err
	}

	rep.log(e)
	fmt.Fprintln(cmd.OutOrStdout(), rep)
	if cfg.Metrics {
		return e.writeMetrics(cmd.OutOrStdout())
	}
	return nil
}
