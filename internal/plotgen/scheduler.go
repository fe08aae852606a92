// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Scheduler coordinates compute-side context selection, the pendingTask
// queue, and every device/context Available flag with a single mutex plus
// a single broadcast condition variable. It is a direct translation of
// CommandGenerate.cpp's std::mutex/std::condition_variable pair into Go,
// following the same "Broadcast, never Signal" discipline as
// priority_queue.go: a single Signal can wake the wrong goroutine (one whose
// predicate still doesn't hold) and leave a goroutine that could have made
// progress asleep forever.

package plotgen

import "sync"

// pendingTask records one compute-to-write handoff: a device finished
// computing workSize plots starting at startNonce for ctx, and they are
// sitting in the device's memory waiting to be drained.
type pendingTask struct {
	device     *GenerationDevice
	ctx        *GenerationContext
	startNonce uint64
	workSize   uint64
}

// Scheduler owns the active-context set and the PendingTask queue, and
// enforces per-device and per-context mutual exclusion.
type Scheduler struct {
	mu   sync.Mutex
	cond sync.Cond

	// all is the full, stable list of contexts in this job, used for
	// progress aggregation. active is the subset still accepting compute
	// work; a context is removed from active (not from all) the instant
	// its last nonce is distributed.
	all    []*GenerationContext
	active []*GenerationContext

	pending []*pendingTask

	fatalErr error
}

// NewScheduler constructs a Scheduler over the given contexts.
func NewScheduler(contexts []*GenerationContext) *Scheduler {
	active := make([]*GenerationContext, len(contexts))
	copy(active, contexts)
	s := &Scheduler{all: contexts, active: active}
	s.cond.L = &s.mu
	return s
}

// FatalError returns the first error reported via ReportFatal, if any.
func (s *Scheduler) FatalError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatalErr
}

// ReportFatal records the first fatal error, clears the pending queue so no
// WriterWorker starts a doomed task, and wakes every waiter.
func (s *Scheduler) ReportFatal(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatalErr == nil {
		s.fatalErr = err
	}
	s.pending = nil
	s.cond.Broadcast()
}

// AcquireComputeWork blocks the calling ComputeWorker until either a fatal
// error has been recorded, there is no more work of any kind left, or
// device has work it can start. It implements a lowest-pending-nonces-first
// selection rule, tied-broken by lowest nonces_distributed.
//
// On success it returns the chosen context, the start nonce, and the work
// size, with device already marked unavailable and (if exhausted) the
// context already removed from the active set -- all under a single critical
// section so selection and bookkeeping stay atomic.
func (s *Scheduler) AcquireComputeWork(device *GenerationDevice) (ctx *GenerationContext, startNonce, workSize uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.fatalErr != nil || len(s.active) == 0 {
			return nil, 0, 0, false
		}
		if device.Available && s.hasComputableContextLocked() {
			break
		}
		s.cond.Wait()
	}

	best := s.selectContextLocked()
	workSize = best.requestWorkSize(device.Config.GlobalWorkSize)
	startNonce = best.NoncesDistributed - workSize
	device.Available = false

	if best.Exhausted() {
		s.removeActiveLocked(best)
	}

	return best, startNonce, workSize, true
}

func (s *Scheduler) hasComputableContextLocked() bool {
	for _, c := range s.active {
		if !c.Exhausted() {
			return true
		}
	}
	return false
}

// selectContextLocked implements the priority rule: lowest PendingNonces
// first, tie-broken by lowest NoncesDistributed. Must be called with mu held.
func (s *Scheduler) selectContextLocked() *GenerationContext {
	best := s.active[0]
	for _, c := range s.active[1:] {
		if c.PendingNonces() < best.PendingNonces() {
			best = c
		} else if c.PendingNonces() == best.PendingNonces() && c.NoncesDistributed < best.NoncesDistributed {
			best = c
		}
	}
	return best
}

func (s *Scheduler) removeActiveLocked(ctx *GenerationContext) {
	for i, c := range s.active {
		if c == ctx {
			s.active = append(s.active[:i], s.active[i+1:]...)
			return
		}
	}
}

// SubmitTask enqueues a completed compute batch for the writer pool to pick
// up, and wakes every waiter (a WriterWorker may now be able to proceed).
func (s *Scheduler) SubmitTask(device *GenerationDevice, ctx *GenerationContext, startNonce, workSize uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, &pendingTask{device: device, ctx: ctx, startNonce: startNonce, workSize: workSize})
	s.cond.Broadcast()
}

// AcquireWriteWork blocks the calling WriterWorker until either a fatal
// error has been recorded, the job has terminated (see terminalLocked), or
// some pending task is the next batch, in file order, for an available
// context. This enforces per-file FIFO write ordering despite the queue
// itself being unordered.
func (s *Scheduler) AcquireWriteWork() (device *GenerationDevice, ctx *GenerationContext, startNonce, workSize uint64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var idx int
	for {
		if s.terminalLocked() {
			return nil, nil, 0, 0, false
		}
		if i, found := s.readyTaskLocked(); found {
			idx = i
			break
		}
		s.cond.Wait()
	}

	t := s.pending[idx]
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	t.ctx.Available = false

	return t.device, t.ctx, t.startNonce, t.workSize, true
}

func (s *Scheduler) readyTaskLocked() (int, bool) {
	for i, t := range s.pending {
		if t.ctx.Available && t.startNonce == t.ctx.NoncesWritten {
			return i, true
		}
	}
	return 0, false
}

// ReleaseDevice marks device available again (called right after the
// WriterWorker finishes draining its memory, before the slower transpose
// step begins, so the device can be reused while the transpose runs) and
// wakes every waiter.
func (s *Scheduler) ReleaseDevice(device *GenerationDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	device.Available = true
	s.cond.Broadcast()
}

// CompleteWrite records that workSize more nonces have been durably written
// (or buffered into the in-progress stagger) for ctx, frees ctx for the next
// WriterWorker, and wakes every waiter.
func (s *Scheduler) CompleteWrite(ctx *GenerationContext, workSize uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx.appendWorkSize(workSize)
	ctx.Available = true
	s.cond.Broadcast()
}

// Snapshot aggregates nonces_written_total and nonces_number_total across
// every context, active or not, for the progress observer.
func (s *Scheduler) Snapshot() (written, total uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.all {
		written += c.NoncesWritten
		total += c.Spec.NoncesNumber
	}
	return
}

// DeviceAvailability reports whether each of devices is currently available,
// read under the same mutex every write to GenerationDevice.Available goes
// through (AcquireComputeWork, ReleaseDevice). Any reader running outside
// the ComputeWorker/WriterWorker loops -- the status page, in particular --
// must go through here rather than reading d.Available directly.
func (s *Scheduler) DeviceAvailability(devices []*GenerationDevice) []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	avail := make([]bool, len(devices))
	for i, d := range devices {
		avail[i] = d.Available
	}
	return avail
}

// terminalLocked reports whether the job has reached a final state: a fatal
// error recorded, or no active contexts, no pending tasks, and every
// distributed nonce written (so no batch is still being computed or
// written). Must be called with mu held.
func (s *Scheduler) terminalLocked() bool {
	if s.fatalErr != nil {
		return true
	}
	if len(s.active) != 0 || len(s.pending) != 0 {
		return false
	}
	for _, c := range s.all {
		if c.NoncesWritten != c.NoncesDistributed {
			return false
		}
	}
	return true
}

// WaitTerminal blocks until the job reaches a terminal state, waking on the
// scheduler's own broadcast (the same one ReportFatal/CompleteWrite/etc. use)
// instead of polling, so a caller waiting on it notices completion as soon
// as the last write lands rather than up to one poll interval later.
func (s *Scheduler) WaitTerminal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.terminalLocked() {
		s.cond.Wait()
	}
}
