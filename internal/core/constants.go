// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

// Package core holds the wire-format constants and error vocabulary shared
// across the generation pipeline. If several components need to agree on a
// value, it belongs here; single-component constants do not.
package core

const (
	// PlotSize is the on-disk size, in bytes, of a single plot.
	PlotSize = 262144

	// ScoopSize is the on-disk size, in bytes, of a single scoop.
	// A plot holds PlotSize/ScoopSize == 4096 scoops.
	ScoopSize = PlotSize / 4096

	// ScoopsPerPlot is the number of scoops in a single plot.
	ScoopsPerPlot = PlotSize / ScoopSize

	// MaxHashesNumber is the upper bound on a device's hashes_number.
	MaxHashesNumber = 8192
)
