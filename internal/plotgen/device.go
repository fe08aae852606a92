// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"github.com/masterhamby/gpuPlotGenerator/internal/metrics"
)

// ComputeBackend is the external collaborator that actually runs the GPU
// kernel. Device enumeration, platform/driver setup, and kernel compilation
// are all out of scope for this package; this interface is the
// seam between the scheduler and whatever backend is wired in (see
// internal/computebackend).
type ComputeBackend interface {
	// ComputePlots runs the kernel to produce workSize consecutive plots
	// starting at startNonce for address, blocking until the device
	// finishes. workSize must be <= the backend's configured global work
	// size. Returns a *core.DeviceError on failure.
	ComputePlots(address, startNonce uint64, workSize uint64) error

	// ReadPlots copies count*core.PlotSize bytes from device memory into
	// dst, starting at local plot index nonceOffset. Returns a
	// *core.DeviceError on failure.
	ReadPlots(dst []byte, nonceOffset, count uint64) error
}

// GenerationDevice wraps one compute device: its launch geometry and the
// backend driving it. Owned by exactly one ComputeWorker; its Available
// flag is read and written by both that worker and whichever WriterWorker is
// currently draining it, always under the Scheduler's mutex.
type GenerationDevice struct {
	Config  DeviceSpec
	Backend ComputeBackend

	// Available is false while a compute is in flight OR while a
	// WriterWorker is draining this device's memory; true otherwise.
	Available bool

	opm *metrics.OpMetric
}

// NewGenerationDevice wraps backend with its launch geometry.
func NewGenerationDevice(config DeviceSpec, backend ComputeBackend, opm *metrics.OpMetric) *GenerationDevice {
	return &GenerationDevice{
		Config:    config,
		Backend:   backend,
		Available: true,
		opm:       opm,
	}
}

// ComputePlots runs the kernel outside any lock; the caller is responsible
// for having already marked the device unavailable under the scheduler
// mutex before calling this.
func (d *GenerationDevice) ComputePlots(address, startNonce, workSize uint64) error {
	lm := d.opm.Start("compute")
	err := d.Backend.ComputePlots(address, startNonce, workSize)
	lm.EndWithError(err)
	return err
}

// ReadPlots drains count plots starting at nonceOffset into dst.
func (d *GenerationDevice) ReadPlots(dst []byte, nonceOffset, count uint64) error {
	lm := d.opm.Start("readback")
	err := d.Backend.ReadPlots(dst, nonceOffset, count)
	lm.EndWithError(err)
	return err
}
