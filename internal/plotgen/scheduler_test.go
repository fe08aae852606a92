// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Tests for scheduler.go
package plotgen

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/masterhamby/gpuPlotGenerator/internal/computebackend/refcpu"
	"github.com/masterhamby/gpuPlotGenerator/internal/computebackend/stub"
	"github.com/masterhamby/gpuPlotGenerator/internal/core"
	"github.com/masterhamby/gpuPlotGenerator/internal/metrics"
)

// testOpMetricSeq makes every metrics.NewOpMetric call in this file register
// a distinct name: promauto registers into the global default registry, and
// panics on the second registration of the same name.
var testOpMetricSeq int64

func testOpMetric(prefix string) *metrics.OpMetric {
	n := atomic.AddInt64(&testOpMetricSeq, 1)
	return metrics.NewOpMetric(fmt.Sprintf("%s_%d", prefix, n), "op")
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %s", path, err)
	}
	return b
}

func newTestContext(t *testing.T, address, noncesNumber, staggerSize uint64, dir string) *GenerationContext {
	spec := PlotFileSpec{Address: address, NoncesNumber: noncesNumber, StaggerSize: staggerSize, Path: dir}
	sink, err := NewPlotSink(dir)
	if err != nil {
		t.Fatalf("NewPlotSink: %s", err)
	}
	return NewGenerationContext(spec, sink)
}

func newTestDevice(globalWorkSize uint64) *GenerationDevice {
	spec := DeviceSpec{GlobalWorkSize: globalWorkSize, LocalWorkSize: 1, HashesNumber: 1}
	return NewGenerationDevice(spec, refcpu.New(globalWorkSize), testOpMetric("test_device"))
}

func TestAcquireComputeWorkPrefersLowestPending(t *testing.T) {
	dir := t.TempDir()
	a := newTestContext(t, 1, 100, 10, dir+"/a")
	b := newTestContext(t, 2, 100, 10, dir+"/b")
	a.NoncesDistributed = 50 // a has more work already in flight than b

	s := NewScheduler([]*GenerationContext{a, b})
	device := newTestDevice(1000)

	ctx, startNonce, workSize, ok := s.AcquireComputeWork(device)
	if !ok {
		t.Fatal("expected work to be available")
	}
	if ctx != b {
		t.Fatal("expected the less-loaded context to be selected")
	}
	if startNonce != 0 || workSize != 100 {
		t.Fatalf("unexpected assignment: start=%d size=%d", startNonce, workSize)
	}
	if device.Available {
		t.Fatal("device should be marked unavailable after acquiring work")
	}
}

func TestAcquireComputeWorkCapsAtRemaining(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestContext(t, 1, 10, 10, dir+"/a")
	s := NewScheduler([]*GenerationContext{ctx})
	device := newTestDevice(1000) // device can do far more than the file needs

	_, _, workSize, ok := s.AcquireComputeWork(device)
	if !ok || workSize != 10 {
		t.Fatalf("expected workSize capped to 10, got %d (ok=%v)", workSize, ok)
	}
	if !ctx.Exhausted() {
		t.Fatal("context should be exhausted")
	}
}

func TestAcquireComputeWorkReturnsFalseWhenDone(t *testing.T) {
	s := NewScheduler(nil)
	device := newTestDevice(10)
	_, _, _, ok := s.AcquireComputeWork(device)
	if ok {
		t.Fatal("expected no work with zero contexts")
	}
}

func TestAcquireWriteWorkEnforcesFIFO(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestContext(t, 1, 20, 10, dir+"/a")
	s := NewScheduler([]*GenerationContext{ctx})
	device := newTestDevice(20)

	// Out of order: submit the second batch first.
	ctx.NoncesDistributed = 20
	s.SubmitTask(device, ctx, 10, 10)
	s.SubmitTask(device, ctx, 0, 10)

	gotDevice, gotCtx, startNonce, workSize, ok := s.AcquireWriteWork()
	if !ok {
		t.Fatal("expected a ready task")
	}
	if startNonce != 0 || workSize != 10 {
		t.Fatalf("expected the earliest batch (start=0) to be picked first, got start=%d size=%d", startNonce, workSize)
	}
	if gotDevice != device || gotCtx != ctx {
		t.Fatal("unexpected device/context returned")
	}
}

func TestAcquireWriteWorkBlocksUntilPredecessorQueued(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestContext(t, 1, 20, 10, dir+"/a")
	s := NewScheduler([]*GenerationContext{ctx})
	device := newTestDevice(20)
	ctx.NoncesDistributed = 20

	// Only the second batch is queued; the first hasn't been submitted yet.
	s.SubmitTask(device, ctx, 10, 10)

	done := make(chan struct{})
	go func() {
		s.AcquireWriteWork()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("AcquireWriteWork should not have returned before the predecessor batch was queued")
	case <-time.After(50 * time.Millisecond):
	}

	s.SubmitTask(device, ctx, 0, 10)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AcquireWriteWork did not unblock after the predecessor batch arrived")
	}
}

func TestReportFatalUnblocksWaiters(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestContext(t, 1, 20, 10, dir+"/a")
	s := NewScheduler([]*GenerationContext{ctx})
	device := newTestDevice(1) // small enough that not all nonces are distributed yet

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.AcquireComputeWork(device)
	}()
	go func() {
		defer wg.Done()
		s.AcquireWriteWork()
	}()

	time.Sleep(20 * time.Millisecond)
	injectedErr := &core.DeviceError{Code: -1, Message: "injected"}
	s.ReportFatal(injectedErr)

	waitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitCh)
	}()
	select {
	case <-waitCh:
	case <-time.After(time.Second):
		t.Fatal("ReportFatal did not wake all waiters")
	}

	if s.FatalError() != injectedErr {
		t.Fatal("FatalError did not return the reported error")
	}
}

func TestFullRoundTripProducesDeterministicBytes(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/plot"
	noncesNumber, staggerSize := uint64(40), uint64(10)
	ctx := newTestContext(t, 7, noncesNumber, staggerSize, path)
	device := newTestDevice(6) // forces multiple compute batches per stagger

	s := NewScheduler([]*GenerationContext{ctx})
	computeWorker := NewComputeWorker(device, s)
	writerWorker := NewWriterWorker(s, device.Config.BufferSize(), testOpMetric("test_write"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); computeWorker.Run() }()
	go func() { defer wg.Done(); writerWorker.Run() }()
	wg.Wait()

	if err := ctx.Sink.Close(); err != nil {
		t.Fatalf("closing sink: %s", err)
	}
	if fatal := s.FatalError(); fatal != nil {
		t.Fatalf("unexpected fatal error: %s", fatal)
	}

	got := readFile(t, path)
	if uint64(len(got)) != noncesNumber*core.PlotSize {
		t.Fatalf("unexpected file size: %d", len(got))
	}

	want := make([]byte, noncesNumber*core.PlotSize)
	var scratch [core.PlotSize]byte
	for n := uint64(0); n < noncesNumber; n++ {
		refcpu.FillPlotForTest(scratch[:], 7, n)
		local := n % staggerSize
		stagger := n / staggerSize
		for scoop := uint64(0); scoop < core.ScoopsPerPlot; scoop++ {
			src := scratch[scoop*core.ScoopSize : (scoop+1)*core.ScoopSize]
			dstOff := stagger*staggerSize*core.PlotSize + local*core.ScoopSize + scoop*staggerSize*core.ScoopSize
			copy(want[dstOff:dstOff+core.ScoopSize], src)
		}
	}

	if string(got) != string(want) {
		t.Fatal("stagger-transposed output does not match the reference layout")
	}
}

func TestFatalShutdownStopsAllWorkers(t *testing.T) {
	dir := t.TempDir()
	ctx := newTestContext(t, 1, 100, 10, dir+"/a")
	s := NewScheduler([]*GenerationContext{ctx})

	backend := stub.NewFailAfter(10, 2, &core.DeviceError{Code: 42, Message: "simulated device fault"})
	spec := DeviceSpec{GlobalWorkSize: 10, LocalWorkSize: 1, HashesNumber: 1}
	device := NewGenerationDevice(spec, backend, testOpMetric("test_fatal_device"))

	computeWorker := NewComputeWorker(device, s)
	writerWorker := NewWriterWorker(s, device.Config.BufferSize(), testOpMetric("test_fatal_write"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); computeWorker.Run() }()
	go func() { defer wg.Done(); writerWorker.Run() }()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers did not shut down after a fatal device error")
	}

	if err := s.FatalError(); err == nil {
		t.Fatal("expected a fatal error to be recorded")
	}
}
