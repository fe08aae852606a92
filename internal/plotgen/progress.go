// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricNoncesWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "gpuplotgen",
		Name:      "nonces_written_total",
		Help:      "nonces durably written across all files in the current job",
	})
	metricNoncesTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "gpuplotgen",
		Name:      "nonces_number_total",
		Help:      "total nonces to be written across all files in the current job",
	})
	metricElapsedSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Subsystem: "gpuplotgen",
		Name:      "elapsed_seconds",
		Help:      "seconds since the current job started",
	})
)

// Snapshot is the read-only aggregate progress exposed to external
// renderers. Rate/ETA/percent are derived outside this package.
type Snapshot struct {
	NoncesWrittenTotal uint64
	NoncesNumberTotal  uint64
	ElapsedSeconds     float64
}

// ProgressObserver periodically samples a Scheduler's aggregate state. It is
// read by the CLI renderer and mirrors the samples into the Prometheus
// gauges above and (if non-nil) a diagnostics recorder.
type ProgressObserver struct {
	scheduler *Scheduler
	startedAt time.Time
	recorder  func(Snapshot)
}

// NewProgressObserver builds an observer over scheduler. recorder, if
// non-nil, is invoked with every sample (used to feed internal/plotgen/diag).
func NewProgressObserver(scheduler *Scheduler, recorder func(Snapshot)) *ProgressObserver {
	return &ProgressObserver{scheduler: scheduler, startedAt: time.Now(), recorder: recorder}
}

// Sample takes one snapshot right now, without waiting.
func (p *ProgressObserver) Sample() Snapshot {
	written, total := p.scheduler.Snapshot()
	snap := Snapshot{
		NoncesWrittenTotal: written,
		NoncesNumberTotal:  total,
		ElapsedSeconds:     time.Since(p.startedAt).Seconds(),
	}
	metricNoncesWritten.Set(float64(snap.NoncesWrittenTotal))
	metricNoncesTotal.Set(float64(snap.NoncesNumberTotal))
	metricElapsedSeconds.Set(snap.ElapsedSeconds)
	if p.recorder != nil {
		p.recorder(snap)
	}
	return snap
}

// Run samples every 'interval' until the job reaches a terminal state,
// calling onSample after each sample. The CLI's UI refresh and the
// diagnostics recorder both piggyback on this one wakeup rather than running
// their own timers.
//
// Terminal detection doesn't wait for the next tick: a goroutine blocks on
// the scheduler's own broadcast (the same one ReportFatal/CompleteWrite use)
// so the final sample fires as soon as the last write lands, not up to one
// interval later.
func (p *ProgressObserver) Run(interval time.Duration, onSample func(Snapshot)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	terminal := make(chan struct{})
	go func() {
		p.scheduler.WaitTerminal()
		close(terminal)
	}()

	for {
		select {
		case <-terminal:
			onSample(p.Sample())
			return
		case <-ticker.C:
			onSample(p.Sample())
		}
	}
}
