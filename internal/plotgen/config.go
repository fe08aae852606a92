// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"fmt"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

// Config holds the job-wide knobs that aren't per-device or per-file.
type Config struct {
	// BuffersNb is the number of WriterWorkers to run. Resolved from the
	// CLI's buffersNb argument by ResolveBuffersNb before a Job is built.
	BuffersNb int
}

// DefaultConfig is the zero-config default; there is only one meaningful
// knob here, so one default serves both production and test roles.
var DefaultConfig = Config{
	BuffersNb: 1,
}

// Validate checks Config invariants.
func (c Config) Validate() error {
	if c.BuffersNb <= 0 {
		return fmt.Errorf("buffersNb must be positive, got %d", c.BuffersNb)
	}
	return nil
}

// ResolveBuffersNb implements the CLI's buffersNb argument grammar: a
// positive integer, or "auto" (one writer per output file). "none" was
// reserved historically for an unimplemented direct-write mode and is
// rejected here rather than guessed at.
func ResolveBuffersNb(arg string, numFiles int) (int, error) {
	switch arg {
	case "auto":
		if numFiles == 0 {
			return 0, &core.ConfigError{Entry: -1, Reason: "auto buffersNb requires at least one plot file"}
		}
		return numFiles, nil
	case "none":
		return 0, &core.ConfigError{Entry: -1, Reason: "buffersNb=none (direct-write mode) is not implemented"}
	default:
		var n int
		if _, err := fmt.Sscanf(arg, "%d", &n); err != nil || n <= 0 {
			return 0, &core.ConfigError{Entry: -1, Reason: fmt.Sprintf("invalid buffersNb %q", arg)}
		}
		return n, nil
	}
}
