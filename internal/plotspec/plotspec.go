// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package plotspec parses the plot-file name grammar:
// <address>_<startNonce>_<noncesNumber>_<staggerSize>, all decimal unsigned
// integers. Parsing the grammar is a collaborator external to the core
// pipeline; this package is that collaborator.
package plotspec

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/masterhamby/gpuPlotGenerator/internal/plotgen"
)

// Parse extracts a plotgen.PlotFileSpec from a plot-file path. The spec is
// NOT validated here (that is PlotFileSpec.Validate's job) beyond what is
// needed to parse the four integers.
func Parse(path string) (plotgen.PlotFileSpec, error) {
	base := filepath.Base(path)
	parts := strings.Split(base, "_")
	if len(parts) != 4 {
		return plotgen.PlotFileSpec{}, fmt.Errorf("%q: expected <address>_<startNonce>_<noncesNumber>_<staggerSize>", base)
	}

	fields := make([]uint64, 4)
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return plotgen.PlotFileSpec{}, fmt.Errorf("%q: field %d (%q) is not a decimal unsigned integer: %w", base, i, p, err)
		}
		fields[i] = n
	}

	return plotgen.PlotFileSpec{
		Address:      fields[0],
		StartNonce:   fields[1],
		NoncesNumber: fields[2],
		StaggerSize:  fields[3],
		Path:         path,
	}, nil
}

// Format renders a PlotFileSpec back to the canonical file name, for
// generating default output paths.
func Format(spec plotgen.PlotFileSpec) string {
	return fmt.Sprintf("%d_%d_%d_%d", spec.Address, spec.StartNonce, spec.NoncesNumber, spec.StaggerSize)
}
