package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/time/rate"

	"github.com/hupe1980/lurch"
	lurchprom "github.com/hupe1980/lurch/metrics/prometheus"
	"github.com/hupe1980/lurch/resource"
	"github.com/hupe1980/lurch/testutil"
)

// env holds what every workload shares.
type env struct {
	cfg      Config
	logger   *lurch.Logger
	rc       *resource.Controller
	basic    *lurch.BasicMetricsCollector
	registry *prometheus.Registry
	metrics  lurch.MetricsCollector
	limiter  *rate.Limiter // nil when unthrottled
	rng      *testutil.RNG
}

func newEnv(cfg Config) (*env, error) {
	level, err := cfg.level()
	if err != nil {
		return nil, err
	}
	logger := lurch.NewTextLogger(level)
	if cfg.LogFormat == "json" {
		logger = lurch.NewJSONLogger(level)
	}

	basic := &lurch.BasicMetricsCollector{}
	pc := lurchprom.NewCollector()
	registry := prometheus.NewRegistry()
	if err := registry.Register(pc); err != nil {
		return nil, err
	}

	e := &env{
		cfg:    cfg,
		logger: logger.WithComponent("lurchstress"),
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:     cfg.MemoryLimit,
			MaxBackgroundWorkers: int64(cfg.Workers),
			LogEventsPerSec:      10,
		}),
		basic:    basic,
		registry: registry,
		metrics:  collectors{basic, pc},
		rng:      testutil.NewRNG(cfg.Seed),
	}
	if cfg.Rate > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(cfg.Rate), cfg.Workers)
	}
	return e, nil
}

// workload draws the keys and operation kinds of a run.
func (e *env) workload() ([]int, []testutil.Op) {
	var keys []int
	if e.cfg.Zipf > 0 {
		keys = e.rng.Zipf(e.cfg.Ops, e.cfg.Keyspace, e.cfg.Zipf)
	} else {
		keys = e.rng.Ints(e.cfg.Ops, e.cfg.Keyspace)
	}
	return keys, e.rng.Ops(len(keys), e.cfg.ReadRatio)
}

// wait paces one operation.
func (e *env) wait(ctx context.Context) error {
	if e.limiter == nil {
		return ctx.Err()
	}
	return e.limiter.Wait(ctx)
}

// overBudget reports whether err is a refused slab page rather than a fault.
func overBudget(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, resource.ErrMemoryLimitExceeded)
}

func (e *env) writeMetrics(w io.Writer) error {
	mfs, err := e.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// collectors fans every record out to each of its members.
type collectors []lurch.MetricsCollector

func (cs collectors) RecordInsert(d time.Duration, err error) {
	for _, c := range cs {
		c.RecordInsert(d, err)
	}
}

func (cs collectors) RecordUpdate(d time.Duration, err error) {
	for _, c := range cs {
		c.RecordUpdate(d, err)
	}
}

func (cs collectors) RecordDelete(d time.Duration, err error) {
	for _, c := range cs {
		c.RecordDelete(d, err)
	}
}

func (cs collectors) RecordLookup(hit bool) {
	for _, c := range cs {
		c.RecordLookup(hit)
	}
}

func (cs collectors) RecordEviction() {
	for _, c := range cs {
		c.RecordEviction()
	}
}

func (cs collectors) RecordGrowth(slots int) {
	for _, c := range cs {
		c.RecordGrowth(slots)
	}
}

func (cs collectors) RecordSnapshot(live int) {
	for _, c := range cs {
		c.RecordSnapshot(live)
	}
}

// report summarizes a finished run.
type report struct {
	Workload string
	Ops      int
	Rejected int64
	Len      int
	Elapsed  time.Duration
}

func (r report) String() string {
	perSec := 0.0
	if r.Elapsed > 0 {
		perSec = float64(r.Ops) / r.Elapsed.Seconds()
	}
	return fmt.Sprintf("%s: %d ops in %s (%.0f ops/s), %d rejected, %d items",
		r.Workload, r.Ops, r.Elapsed.Round(time.Millisecond), perSec, r.Rejected, r.Len)
}

func (r report) log(e *env) {
	m := e.basic.GetStats()
	e.logger.Info("stress run finished",
		"workload", r.Workload,
		"ops", r.Ops,
		"elapsed", r.Elapsed,
		"len", r.Len,
		"rejected", r.Rejected,
		"inserts", m.InsertCount,
		"insert_avg_ns", m.InsertAvgNanos,
		"updates", m.UpdateCount,
		"deletes", m.DeleteCount,
		"hits", m.LookupHits,
		"misses", m.LookupMisses,
		"evictions", m.Evictions,
		"grown_slots", m.GrownSlots,
		"snapshot_events", m.SnapshotEvents,
		"peak_memory", e.rc.PeakMemoryUsage(),
	)
}
