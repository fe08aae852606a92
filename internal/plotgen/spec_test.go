// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Tests for spec.go
package plotgen

import "testing"

func TestPlotFileSpecValidate(t *testing.T) {
	cases := []struct {
		name    string
		spec    PlotFileSpec
		wantErr bool
	}{
		{"valid", PlotFileSpec{NoncesNumber: 100, StaggerSize: 10}, false},
		{"zero stagger", PlotFileSpec{NoncesNumber: 100, StaggerSize: 0}, true},
		{"zero nonces", PlotFileSpec{NoncesNumber: 0, StaggerSize: 10}, true},
		{"not a multiple", PlotFileSpec{NoncesNumber: 101, StaggerSize: 10}, true},
	}
	for _, c := range cases {
		err := c.spec.Validate()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Validate() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestPlotFileSpecDerivedFields(t *testing.T) {
	spec := PlotFileSpec{NoncesNumber: 100, StaggerSize: 10}
	if spec.Staggers() != 10 {
		t.Fatalf("expected 10 staggers, got %d", spec.Staggers())
	}
	if spec.FileSize() != 100*262144 {
		t.Fatalf("unexpected file size: %d", spec.FileSize())
	}
}

func TestDeviceSpecNormalize(t *testing.T) {
	cases := []struct {
		name    string
		spec    DeviceSpec
		wantErr bool
	}{
		{"valid", DeviceSpec{GlobalWorkSize: 256, LocalWorkSize: 64, HashesNumber: 8}, false},
		{"not a multiple", DeviceSpec{GlobalWorkSize: 250, LocalWorkSize: 64, HashesNumber: 8}, true},
		{"zero local", DeviceSpec{GlobalWorkSize: 256, LocalWorkSize: 0, HashesNumber: 8}, true},
		{"hashes too low", DeviceSpec{GlobalWorkSize: 256, LocalWorkSize: 64, HashesNumber: 0}, true},
		{"hashes too high", DeviceSpec{GlobalWorkSize: 256, LocalWorkSize: 64, HashesNumber: 8193}, true},
	}
	for _, c := range cases {
		err := c.spec.Normalize()
		if (err != nil) != c.wantErr {
			t.Errorf("%s: Normalize() error = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestDeviceSpecBufferSize(t *testing.T) {
	spec := DeviceSpec{GlobalWorkSize: 256}
	if spec.BufferSize() != 256*262144 {
		t.Fatalf("unexpected buffer size: %d", spec.BufferSize())
	}
}
