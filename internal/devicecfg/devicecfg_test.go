// Copyright (c) 2016 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Tests for devicecfg.go
package devicecfg

import (
	"strings"
	"testing"
)

func TestLoadAcceptsValidEntries(t *testing.T) {
	r := strings.NewReader(`[
		{"platform_id": 0, "device_id": 0, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8},
		{"platform_id": 0, "device_id": 1, "global_work_size": 512, "local_work_size": 64, "hashes_number": 8}
	]`)
	specs, err := Load(r, FixedLimits{0: 2}, nil)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 device specs, got %d", len(specs))
	}
}

func TestLoadDropsEntriesWithUnknownPlatform(t *testing.T) {
	r := strings.NewReader(`[
		{"platform_id": 0, "device_id": 0, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8},
		{"platform_id": 9, "device_id": 0, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8}
	]`)
	specs, err := Load(r, FixedLimits{0: 1}, nil)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected the unknown-platform entry to be dropped, got %d specs", len(specs))
	}
}

func TestLoadDropsEntriesWithDeviceIDOutOfRange(t *testing.T) {
	r := strings.NewReader(`[
		{"platform_id": 0, "device_id": 0, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8},
		{"platform_id": 0, "device_id": 5, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8}
	]`)
	specs, err := Load(r, FixedLimits{0: 1}, nil)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if len(specs) != 1 {
		t.Fatalf("expected the out-of-range device to be dropped, got %d specs", len(specs))
	}
}

func TestLoadFailsWhenEverythingIsDropped(t *testing.T) {
	r := strings.NewReader(`[{"platform_id": 9, "device_id": 0, "global_work_size": 256, "local_work_size": 64, "hashes_number": 8}]`)
	_, err := Load(r, FixedLimits{0: 1}, nil)
	if err == nil {
		t.Fatal("expected an error when every entry is dropped")
	}
}

func TestFixedLimitsDeviceCount(t *testing.T) {
	limits := FixedLimits{0: 2, 1: 4}
	if n, ok := limits.DeviceCount(1); !ok || n != 4 {
		t.Fatalf("expected platform 1 to have 4 devices, got %d (ok=%v)", n, ok)
	}
	if _, ok := limits.DeviceCount(5); ok {
		t.Fatal("expected unknown platform to report not-found")
	}
}
