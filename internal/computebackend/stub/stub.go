// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package stub provides test-only plotgen.ComputeBackend implementations
// used to exercise the fatal-shutdown path without any real device.
package stub

import (
	"sync"

	"github.com/masterhamby/gpuPlotGenerator/internal/computebackend/refcpu"
	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

// FailAfter wraps a refcpu.Backend and fails the Nth call (1-indexed) to
// ComputePlots with err, succeeding on every other call.
type FailAfter struct {
	inner *refcpu.Backend
	n     int
	err   *core.DeviceError

	mu    sync.Mutex
	calls int
}

// NewFailAfter returns a backend that fails its nth ComputePlots call.
func NewFailAfter(globalWorkSize uint64, n int, err *core.DeviceError) *FailAfter {
	return &FailAfter{inner: refcpu.New(globalWorkSize), n: n, err: err}
}

func (f *FailAfter) ComputePlots(address, startNonce, workSize uint64) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls == f.n
	f.mu.Unlock()

	if fail {
		return f.err
	}
	return f.inner.ComputePlots(address, startNonce, workSize)
}

func (f *FailAfter) ReadPlots(dst []byte, nonceOffset, count uint64) error {
	return f.inner.ReadPlots(dst, nonceOffset, count)
}
