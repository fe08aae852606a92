// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

// GenerationContext holds the per-file state: how many nonces have been
// handed out to compute workers, how many have actually hit disk, and the
// in-progress stagger transpose buffer. NoncesDistributed, NoncesWritten and
// Available are only ever written while the Scheduler's mutex is held.
// StaggerBuffer and Sink are only ever touched by the single WriterWorker
// currently holding this context (enforced by Available, see scheduler.go),
// which also reads NoncesWritten outside the mutex while it holds it.
type GenerationContext struct {
	Spec PlotFileSpec
	Sink *PlotSink

	// NoncesDistributed is monotonically non-decreasing and <= Spec.NoncesNumber.
	NoncesDistributed uint64
	// NoncesWritten is monotonically non-decreasing and <= NoncesDistributed.
	NoncesWritten uint64

	// StaggerBuffer accumulates scoops for the in-progress stagger until it
	// is full, at which point the WriterWorker flushes it to Sink.
	StaggerBuffer []byte

	// Available is true iff no WriterWorker currently holds this context.
	Available bool
}

// NewGenerationContext constructs a context for one output file. The caller
// must have already validated spec (see PlotFileSpec.Validate).
func NewGenerationContext(spec PlotFileSpec, sink *PlotSink) *GenerationContext {
	return &GenerationContext{
		Spec:          spec,
		Sink:          sink,
		StaggerBuffer: make([]byte, spec.StaggerSize*core.PlotSize),
		Available:     true,
	}
}

// PendingNonces is the scheduler's load-balancing signal: how much compute
// output is sitting in flight, not yet flushed to disk.
func (c *GenerationContext) PendingNonces() uint64 {
	return c.NoncesDistributed - c.NoncesWritten
}

// Exhausted reports whether every nonce in the file has been distributed to
// a compute worker (not necessarily written yet).
func (c *GenerationContext) Exhausted() bool {
	return c.NoncesDistributed >= c.Spec.NoncesNumber
}

// requestWorkSize hands out up to 'preferred' more nonces, returning how
// many were actually granted (0 if the context has nothing left). Must be
// called with the scheduler mutex held.
func (c *GenerationContext) requestWorkSize(preferred uint64) uint64 {
	remaining := c.Spec.NoncesNumber - c.NoncesDistributed
	n := preferred
	if n > remaining {
		n = remaining
	}
	c.NoncesDistributed += n
	return n
}

// appendWorkSize records that n more nonces have been durably written (or
// buffered into the in-progress stagger). Must be called with the scheduler
// mutex held.
func (c *GenerationContext) appendWorkSize(n uint64) {
	c.NoncesWritten += n
}
