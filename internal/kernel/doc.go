// Package kernel implements the numeric kernels of the training stack on top
// of exact accumulation: every output element is computed in a quire and
// rounded to a posit exactly once.
//
// Kernels take a parallel.Config as execution context. The zero value runs on
// the caller's goroutine; larger worker counts split the output index range
// into contiguous chunks, each with its own quire.
//
// Shape contract violations are programmer errors and panic.
package kernel
