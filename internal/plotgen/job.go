// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"sync"
	"time"

	log "github.com/golang/glog"

	"github.com/masterhamby/gpuPlotGenerator/internal/metrics"
)

// Job is the top-level orchestrator: it owns every GenerationDevice and
// GenerationContext for one invocation of `generate`, and drives the
// ComputeWorker/WriterWorker pools to completion.
type Job struct {
	Config Config

	devices  []*GenerationDevice
	contexts []*GenerationContext

	scheduler *Scheduler
	progress  *ProgressObserver

	opmWrite *metrics.OpMetric
}

// NewJob wires up a Scheduler over contexts and readies the device/writer
// pools. devices and contexts must already be validated/normalized. opmWrite
// is the op metric shared by every WriterWorker this job spawns; callers
// that run more than one Job in a process (e.g. a shell repeating "generate")
// must reuse the same *metrics.OpMetric across calls, since Prometheus
// refuses to register the same metric name twice.
func NewJob(config Config, devices []*GenerationDevice, contexts []*GenerationContext, opmWrite *metrics.OpMetric, recorder func(Snapshot)) *Job {
	scheduler := NewScheduler(contexts)
	j := &Job{
		Config:    config,
		devices:   devices,
		contexts:  contexts,
		scheduler: scheduler,
		opmWrite:  opmWrite,
	}
	j.progress = NewProgressObserver(scheduler, recorder)
	return j
}

// maxDeviceBufferSize returns the largest per-batch device buffer across all
// configured devices, used to size each WriterWorker's drain buffer.
func (j *Job) maxDeviceBufferSize() uint64 {
	var max uint64
	for _, d := range j.devices {
		if sz := d.Config.BufferSize(); sz > max {
			max = sz
		}
	}
	return max
}

// Run spawns one ComputeWorker per device and Config.BuffersNb WriterWorkers,
// then blocks until the job completes or a fatal error is recorded. It
// returns the first fatal error, if any.
func (j *Job) Run() error {
	var wg sync.WaitGroup

	for _, d := range j.devices {
		w := NewComputeWorker(d, j.scheduler)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run()
		}()
	}

	maxBuf := j.maxDeviceBufferSize()
	for i := 0; i < j.Config.BuffersNb; i++ {
		w := NewWriterWorker(j.scheduler, maxBuf, j.opmWrite)
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run()
		}()
	}

	j.progress.Run(5*time.Second, func(snap Snapshot) {
		log.V(1).Infof("progress: %d/%d nonces written (%.0fs elapsed)",
			snap.NoncesWrittenTotal, snap.NoncesNumberTotal, snap.ElapsedSeconds)
	})

	wg.Wait()

	for _, c := range j.contexts {
		if err := c.Sink.Close(); err != nil {
			log.Errorf("error closing %s: %s", c.Spec.Path, err)
		}
	}

	return j.scheduler.FatalError()
}

// Progress returns the job's progress observer, for external renderers.
func (j *Job) Progress() *ProgressObserver {
	return j.progress
}
