// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package refcpu is a pure-Go stand-in for the real GPU kernel, which is
// out of scope for this repository: the GPU kernels themselves and their
// compilation are an external collaborator. It lets
// the scheduler, the round-trip property, and the CLI (which drives every
// device, configured or default, through this backend) run on a machine
// with no OpenCL/CUDA driver at all.
//
// It is NOT the Burst proof-of-capacity hash (that algorithm belongs to the
// out-of-scope kernel) -- it only needs to be a pure, deterministic
// function of (address, nonce, scoop) so that the same (address, nonce)
// pair always produces the same plot bytes no matter how the batch that
// produced it was sized or scheduled.
package refcpu

import (
	"encoding/binary"
	"hash/fnv"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

// Backend implements plotgen.ComputeBackend with an in-process deterministic
// fill, backed by a device-side buffer sized for globalWorkSize plots.
type Backend struct {
	globalWorkSize uint64
	buf            []byte

	// injected by tests; left nil in production use.
	failCompute *core.DeviceError
}

// New returns a Backend whose device buffer can hold globalWorkSize plots.
func New(globalWorkSize uint64) *Backend {
	return &Backend{
		globalWorkSize: globalWorkSize,
		buf:            make([]byte, globalWorkSize*core.PlotSize),
	}
}

// ComputePlots fills the device buffer with deterministic bytes for
// workSize consecutive nonces starting at startNonce.
func (b *Backend) ComputePlots(address, startNonce, workSize uint64) error {
	if b.failCompute != nil {
		return b.failCompute
	}
	if workSize > b.globalWorkSize {
		return &core.DeviceError{Code: -1, Message: "workSize exceeds global_work_size"}
	}
	for i := uint64(0); i < workSize; i++ {
		fillPlot(b.buf[i*core.PlotSize:(i+1)*core.PlotSize], address, startNonce+i)
	}
	return nil
}

// ReadPlots copies count plots starting at nonceOffset out of the device
// buffer.
func (b *Backend) ReadPlots(dst []byte, nonceOffset, count uint64) error {
	src := b.buf[nonceOffset*core.PlotSize : (nonceOffset+count)*core.PlotSize]
	copy(dst, src)
	return nil
}

// fillPlot deterministically fills one plot's worth of bytes from
// (address, nonce). Every scoop is derived from a 64-bit FNV hash of
// (address, nonce, scoop index) so distinct scoops don't collide trivially.
func fillPlot(plot []byte, address, nonce uint64) {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[0:8], address)
	binary.BigEndian.PutUint64(seed[8:16], nonce)

	for scoop := 0; scoop < core.ScoopsPerPlot; scoop++ {
		h := fnv.New64a()
		h.Write(seed[:])
		var idx [4]byte
		binary.BigEndian.PutUint32(idx[:], uint32(scoop))
		h.Write(idx[:])

		off := scoop * core.ScoopSize
		// Stretch the 8-byte digest to fill the whole scoop.
		digest := h.Sum64()
		for b := 0; b < core.ScoopSize; b += 8 {
			binary.BigEndian.PutUint64(plot[off+b:off+b+8], digest)
			digest = digest*6364136223846793005 + 1442695040888963407
		}
	}
}

// FillPlotForTest exposes fillPlot to the reference scoop-by-scoop
// implementation used by round-trip tests.
func FillPlotForTest(plot []byte, address, nonce uint64) {
	fillPlot(plot, address, nonce)
}

// WithInjectedDeviceError returns a Backend that fails every ComputePlots
// call with the given error, for fatal-shutdown tests.
func WithInjectedDeviceError(globalWorkSize uint64, err *core.DeviceError) *Backend {
	b := New(globalWorkSize)
	b.failCompute = err
	return b
}
