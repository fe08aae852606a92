// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	log "github.com/golang/glog"
)

// ComputeWorker drives one GenerationDevice: acquire an assignment from the
// scheduler, run the device compute outside any lock, enqueue the result as
// a pendingTask. One ComputeWorker runs per configured device.
type ComputeWorker struct {
	device    *GenerationDevice
	scheduler *Scheduler
}

// NewComputeWorker builds a worker for one device.
func NewComputeWorker(device *GenerationDevice, scheduler *Scheduler) *ComputeWorker {
	return &ComputeWorker{device: device, scheduler: scheduler}
}

// Run loops until the scheduler reports a fatal error or there is no more
// work of any kind left to distribute.
func (w *ComputeWorker) Run() {
	for {
		ctx, startNonce, workSize, ok := w.scheduler.AcquireComputeWork(w.device)
		if !ok {
			return
		}

		if err := w.device.ComputePlots(ctx.Spec.Address, ctx.Spec.StartNonce+startNonce, workSize); err != nil {
			log.Errorf("compute failed for %s at nonce %d: %s", ctx.Spec.Path, startNonce, err)
			w.scheduler.ReportFatal(err)
			return
		}

		w.scheduler.SubmitTask(w.device, ctx, startNonce, workSize)
	}
}
