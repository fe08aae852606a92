// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	log "github.com/golang/glog"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
	"github.com/masterhamby/gpuPlotGenerator/internal/metrics"
)

// WriterWorker picks a ready PendingTask honoring per-file FIFO, drains the
// device's memory, transposes the batch into stagger layout, and flushes
// completed staggers to the file's PlotSink. One of `buffersNb` WriterWorkers
// runs per job.
//
// Each worker owns two private scratch buffers, sized once at construction:
// a per-plot staging buffer and a device-drain buffer big enough for the
// largest device batch in the job. The stagger transpose buffer itself is
// NOT private to the worker -- it lives on the GenerationContext (see
// context.go) because a partially filled stagger from one batch can be
// completed by the next batch for the same file, and two different
// batches for one file are not guaranteed to land on the same WriterWorker.
type WriterWorker struct {
	scheduler *Scheduler

	plotScratch []byte // core.PlotSize
	deviceDrain []byte // maxDeviceBufferSize

	opm *metrics.OpMetric
}

// NewWriterWorker allocates a worker whose device-drain buffer can hold the
// largest batch any configured device can produce in one compute call.
func NewWriterWorker(scheduler *Scheduler, maxDeviceBufferSize uint64, opm *metrics.OpMetric) *WriterWorker {
	return &WriterWorker{
		scheduler:   scheduler,
		plotScratch: make([]byte, core.PlotSize),
		deviceDrain: make([]byte, maxDeviceBufferSize),
		opm:         opm,
	}
}

// Run loops until the scheduler reports a fatal error or the job is done.
func (w *WriterWorker) Run() {
	for {
		device, ctx, startNonce, workSize, ok := w.scheduler.AcquireWriteWork()
		if !ok {
			return
		}

		if err := w.handleBatch(device, ctx, startNonce, workSize); err != nil {
			log.Errorf("write failed for %s at nonce %d: %s", ctx.Spec.Path, startNonce, err)
			w.scheduler.ReportFatal(err)
			return
		}
	}
}

func (w *WriterWorker) handleBatch(device *GenerationDevice, ctx *GenerationContext, startNonce, workSize uint64) error {
	lm := w.opm.Start("write_batch")
	defer lm.End()

	// Step 2: drain device memory, then release the device immediately --
	// before the (slower) transpose step -- so the device can start its
	// next compute while this worker is still transposing.
	for i := uint64(0); i < workSize; i++ {
		if err := device.ReadPlots(w.plotScratch, i, 1); err != nil {
			return err
		}
		copy(w.deviceDrain[i*core.PlotSize:(i+1)*core.PlotSize], w.plotScratch)
	}
	w.scheduler.ReleaseDevice(device)

	// Step 3+4: transpose into stagger layout, flushing whenever a local
	// nonce completes its stagger.
	S := ctx.Spec.StaggerSize
	for i := uint64(0); i < workSize; i++ {
		n := ctx.NoncesWritten + i
		local := n % S
		for j := uint64(0); j < core.PlotSize; j += core.ScoopSize {
			src := w.deviceDrain[i*core.PlotSize+j : i*core.PlotSize+j+core.ScoopSize]
			dstOff := local*core.ScoopSize + j*S
			copy(ctx.StaggerBuffer[dstOff:dstOff+core.ScoopSize], src)
		}
		if local == S-1 {
			if err := ctx.Sink.Append(ctx.StaggerBuffer[:S*core.PlotSize]); err != nil {
				return err
			}
		}
	}

	// Step 5: record progress and free the context for the next batch.
	w.scheduler.CompleteWrite(ctx, workSize)
	return nil
}
