// Package resource implements a Controller for limits shared by several collections.
//
// A Controller governs three things:
//
//   - Memory: slab pages and accounted cache values
//   - Background workers: parallel verification and cache invalidation
//   - Log volume: a token bucket for sampled diagnostic lines (AllowLog)
//
// # Memory
//
// A weighted semaphore enforces the hard limit; atomic counters track current
// and peak usage.
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 256 << 20,
//	})
//
//	t, _ := lurchtable.New[string, []byte](lurchtable.Access, 1<<20,
//	    lurchtable.WithResourceController(rc))
//	s := treeset.NewOrdered[int](treeset.WithResourceController(rc))
//
// Slabs call AcquireMemory for a page before appending it and give up after a
// short wait, so an insert that needs a page over budget fails with
// context.DeadlineExceeded, or with ErrMemoryLimitExceeded when one page is
// larger than the whole limit. Caches use TryAcquireMemory for value bytes and
// fail at once with ErrMemoryLimitExceeded.
//
// # Background workers
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// BackgroundWorkers reports the slot count so callers can size an errgroup.
//
// # Nil safety
//
// Every method accepts a nil *Controller, which imposes no limits and offers
// one background worker.
package resource
