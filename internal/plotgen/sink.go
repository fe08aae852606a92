// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// PlotSink is a sequential append-only writer for one plot file. It started
// life as pkg/disk's ChecksumFile: same create-or-append flag handling, same
// fadvise(POSIX_FADV_RANDOM) call to keep the OS from wasting buffer cache on
// read-ahead for a file nobody reads sequentially-forwards-then-back. The
// block-checksum framing ChecksumFile adds around every write is dropped: the
// bytes a PlotSink writes are the fixed, miner-readable stagger layout, and
// no header can be interleaved into that format without breaking it for
// every other Burst miner that reads it.

package plotgen

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	log "github.com/golang/glog"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
	"github.com/masterhamby/gpuPlotGenerator/pkg/retry"
)

// PlotSink is the only writer of one output file. The scheduler guarantees
// at most one goroutine calls Append at a time (see context.go's `available`
// flag), so PlotSink itself holds no lock.
type PlotSink struct {
	path string
	file *os.File
}

// NewPlotSink opens (or creates) the file at path in append mode.
func NewPlotSink(path string) (*PlotSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, &core.IoError{Path: path, Err: err}
	}
	if err := fadviseRandom(f); err != nil {
		// Not fatal: this is a read-ahead hint, not correctness.
		log.Infof("%s: couldn't disable readahead: %s", path, err)
	}
	return &PlotSink{path: path, file: f}, nil
}

// openRetrier bounds the backoff used by NewPlotSinkRetrying: output
// directories living on network filesystems can transiently reject opens
// (EBUSY, EAGAIN) while another process finishes setting them up.
var openRetrier = retry.Retrier{
	MinSleep:      50 * time.Millisecond,
	MaxSleep:      2 * time.Second,
	MaxNumRetries: 5,
}

// NewPlotSinkRetrying is NewPlotSink with a bounded backoff retry around the
// open call, for transient errors (EBUSY, EAGAIN, EINTR) rather than
// permanent ones (permission denied, no such directory).
func NewPlotSinkRetrying(ctx context.Context, path string) (*PlotSink, error) {
	var sink *PlotSink
	var lastErr error
	_, cancelled := openRetrier.Do(ctx, func(int) bool {
		sink, lastErr = NewPlotSink(path)
		if lastErr == nil {
			return true
		}
		var ioErr *core.IoError
		if !errors.As(lastErr, &ioErr) {
			return true // not an IoError at all: give up immediately
		}
		transient := errors.Is(ioErr.Err, syscall.EBUSY) ||
			errors.Is(ioErr.Err, syscall.EAGAIN) ||
			errors.Is(ioErr.Err, syscall.EINTR)
		return !transient // keep retrying only transient errors
	})
	if cancelled {
		return nil, ctx.Err()
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return sink, nil
}

// Append writes b to the end of the file. A short write (or any OS error) is
// reported as a core.IoError.
func (s *PlotSink) Append(b []byte) error {
	n, err := s.file.Write(b)
	if err != nil {
		return &core.IoError{Path: s.path, Err: err}
	}
	if n != len(b) {
		return &core.IoError{Path: s.path, Err: os.ErrClosed}
	}
	return nil
}

// Close flushes and closes the underlying file.
func (s *PlotSink) Close() error {
	if err := s.file.Sync(); err != nil {
		return &core.IoError{Path: s.path, Err: err}
	}
	if err := s.file.Close(); err != nil {
		return &core.IoError{Path: s.path, Err: err}
	}
	return nil
}
