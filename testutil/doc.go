// Package testutil provides testing utilities for lurch.
//
// This package is intended for use in tests, benchmarks and the stress tool.
// It provides a seeded, goroutine-safe random source and generators for keys
// and workloads.
//
// # Keys
//
//	rng := testutil.NewRNG(seed)
//	keys := rng.UniqueInts(1000, 1<<20) // distinct, random order
//	hot := rng.Zipf(1000, 1<<16, 1.2)   // skewed access pattern
//
// # Workloads
//
//	for i, op := range rng.Ops(n, 0.9) {
//	    switch op {
//	    case testutil.OpGet:
//	        // ...
//	    }
//	}
package testutil
