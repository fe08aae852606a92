// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Tests for context.go
package plotgen

import (
	"testing"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
)

func TestRequestWorkSizeCapsAtRemaining(t *testing.T) {
	c := &GenerationContext{Spec: PlotFileSpec{NoncesNumber: 10}}

	got := c.requestWorkSize(6)
	if got != 6 || c.NoncesDistributed != 6 {
		t.Fatalf("expected 6 granted, got %d (distributed=%d)", got, c.NoncesDistributed)
	}

	got = c.requestWorkSize(6)
	if got != 4 || c.NoncesDistributed != 10 {
		t.Fatalf("expected remainder of 4 granted, got %d (distributed=%d)", got, c.NoncesDistributed)
	}

	got = c.requestWorkSize(6)
	if got != 0 {
		t.Fatalf("expected 0 granted once exhausted, got %d", got)
	}
}

func TestPendingNoncesAndExhausted(t *testing.T) {
	c := &GenerationContext{Spec: PlotFileSpec{NoncesNumber: 10}}
	c.requestWorkSize(10)
	if !c.Exhausted() {
		t.Fatal("expected context to be exhausted")
	}
	if c.PendingNonces() != 10 {
		t.Fatalf("expected 10 pending nonces (distributed but not written), got %d", c.PendingNonces())
	}
	c.appendWorkSize(10)
	if c.PendingNonces() != 0 {
		t.Fatalf("expected 0 pending nonces after writing, got %d", c.PendingNonces())
	}
}

func TestNewGenerationContextSizesStaggerBuffer(t *testing.T) {
	spec := PlotFileSpec{NoncesNumber: 100, StaggerSize: 5}
	c := NewGenerationContext(spec, nil)
	wantLen := int(5 * core.PlotSize)
	if len(c.StaggerBuffer) != wantLen {
		t.Fatalf("expected stagger buffer of %d bytes, got %d", wantLen, len(c.StaggerBuffer))
	}
	if !c.Available {
		t.Fatal("a fresh context should be available")
	}
}
