// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

// PlotFileSpec describes one output file: a contiguous range of nonces for
// one account address, arranged in staggers of StaggerSize nonces each.
// Immutable once constructed.
type PlotFileSpec struct {
	Address      uint64
	StartNonce   uint64
	NoncesNumber uint64
	StaggerSize  uint64
	Path         string
}

// Validate checks that NoncesNumber is positive, StaggerSize is positive,
// and NoncesNumber is an exact multiple of StaggerSize.
func (s PlotFileSpec) Validate() error {
	if s.StaggerSize == 0 || s.NoncesNumber == 0 || s.NoncesNumber%s.StaggerSize != 0 {
		return &core.InvalidPlotSpec{NoncesNumber: s.NoncesNumber, StaggerSize: s.StaggerSize}
	}
	return nil
}

// Staggers returns the number of complete staggers in the file.
func (s PlotFileSpec) Staggers() uint64 {
	return s.NoncesNumber / s.StaggerSize
}

// FileSize returns the total size, in bytes, of the completed file.
func (s PlotFileSpec) FileSize() uint64 {
	return s.NoncesNumber * core.PlotSize
}

// DeviceSpec describes the launch geometry of one compute device.
// Immutable after Normalize.
type DeviceSpec struct {
	PlatformID     int
	DeviceID       int
	GlobalWorkSize uint64
	LocalWorkSize  uint64
	HashesNumber   uint64
}

// Normalize validates that GlobalWorkSize is a positive multiple of
// LocalWorkSize, and that HashesNumber falls in [1, core.MaxHashesNumber].
func (d DeviceSpec) Normalize() error {
	if d.LocalWorkSize == 0 || d.GlobalWorkSize == 0 || d.GlobalWorkSize%d.LocalWorkSize != 0 {
		return &core.ConfigError{Entry: -1, Reason: "global_work_size must be a positive multiple of local_work_size"}
	}
	if d.HashesNumber < 1 || d.HashesNumber > core.MaxHashesNumber {
		return &core.ConfigError{Entry: -1, Reason: "hashes_number must be in [1, 8192]"}
	}
	return nil
}

// BufferSize returns the device-memory footprint, in bytes, needed to hold
// GlobalWorkSize plots.
func (d DeviceSpec) BufferSize() uint64 {
	return d.GlobalWorkSize * core.PlotSize
}
