// Package arena provides Slab, a paged arena of fixed-size typed slots
// addressed by 32-bit indices.
//
// Index arithmetic is a shift and a mask: page = idx >> shift, offset =
// idx & mask. Pages are appended under a mutex and never moved, so a pointer
// returned by At stays valid until Reset or Free. Index 0 is reserved as the
// null index.
//
// # Features
//
//   - Lock-free index resolution through an atomically published page directory
//   - CAS bump allocation of fresh slots (TryBump)
//   - Double-checked page growth (Grow) with optional memory accounting
//   - Generation tracking across Reset/Free
//
// Recycling of released slots is left to the owner, which knows its own
// free-list discipline.
package arena
