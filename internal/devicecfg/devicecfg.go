// Copyright (c) 2016 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package devicecfg decodes a JSON device configuration list into
// normalized plotgen.DeviceSpecs, and keeps a sqlite3 audit trail of any
// entries it had to drop. Enumerating real platforms/devices is an external
// collaborator; this package only decodes, normalizes and audits.
package devicecfg

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"

	// Registers the sqlite3 driver used by the audit trail below.
	_ "github.com/mattn/go-sqlite3"

	log "github.com/golang/glog"

	"github.com/masterhamby/gpuPlotGenerator/internal/core"
	"github.com/masterhamby/gpuPlotGenerator/internal/plotgen"
)

// entry is the on-the-wire shape of one device configuration record.
type entry struct {
	PlatformID     int    `json:"platform_id"`
	DeviceID       int    `json:"device_id"`
	GlobalWorkSize uint64 `json:"global_work_size"`
	LocalWorkSize  uint64 `json:"local_work_size"`
	HashesNumber   uint64 `json:"hashes_number"`
}

// PlatformLimits reports, for a given platform id, how many devices it has.
// The real enumeration of OpenCL/CUDA platforms is out of scope here; the
// caller supplies it (e.g. backed by a real driver query, or a fixed table
// in tests).
type PlatformLimits interface {
	// DeviceCount returns the number of devices on platformID, or
	// (0, false) if no such platform exists.
	DeviceCount(platformID int) (int, bool)
}

// FixedLimits is a PlatformLimits backed by a static table, for callers that
// already know their platform layout (from a driver query done elsewhere,
// or a fixed table in tests) rather than wanting this package to enumerate
// anything itself.
type FixedLimits map[int]int

// DeviceCount implements PlatformLimits.
func (f FixedLimits) DeviceCount(platformID int) (int, bool) {
	n, ok := f[platformID]
	return n, ok
}

// Audit records dropped device-configuration entries for later inspection.
// Backed by a sqlite3 database so an operator can query, across many runs,
// which entries keep getting rejected.
type Audit struct {
	db       *sql.DB
	insert   *sql.Stmt
	runStart int64
}

// OpenAudit opens (or creates) the sqlite3 audit database at path.
func OpenAudit(path string) (*Audit, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening device-config audit db %q: %w", path, err)
	}
	const createStmt = `CREATE TABLE IF NOT EXISTS dropped_devices (
		run_id INTEGER NOT NULL,
		entry_index INTEGER NOT NULL,
		reason TEXT NOT NULL,
		at INTEGER NOT NULL
	)`
	if _, err := db.Exec(createStmt); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating dropped_devices table: %w", err)
	}
	insert, err := db.Prepare("INSERT INTO dropped_devices (run_id, entry_index, reason, at) VALUES (?, ?, ?, ?)")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing dropped_devices insert: %w", err)
	}
	return &Audit{db: db, insert: insert, runStart: time.Now().Unix()}, nil
}

// Close releases the underlying sqlite3 handle.
func (a *Audit) Close() error {
	return a.db.Close()
}

func (a *Audit) record(index int, reason string) {
	if _, err := a.insert.Exec(a.runStart, index, reason, time.Now().Unix()); err != nil {
		log.Errorf("device-config audit: couldn't record dropped entry %d: %s", index, err)
	}
}

// Load decodes a JSON array of device entries from r, normalizes each one,
// and drops (with a log line and an audit row) any entry whose platform or
// device id doesn't exist in limits, or whose parameters fail
// DeviceSpec.Normalize. If audit is non-nil, every drop is also recorded
// there. If every entry is dropped, Load returns a fatal *core.ConfigError.
func Load(r io.Reader, limits PlatformLimits, audit *Audit) ([]plotgen.DeviceSpec, error) {
	var entries []entry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decoding device configuration: %w", err)
	}

	specs := make([]plotgen.DeviceSpec, 0, len(entries))
	for i, e := range entries {
		reason, ok := validateEntry(e, limits)
		if !ok {
			log.Errorf("    [%d][ERROR] %s, ignoring device", i, reason)
			if audit != nil {
				audit.record(i, reason)
			}
			continue
		}
		specs = append(specs, plotgen.DeviceSpec{
			PlatformID:     e.PlatformID,
			DeviceID:       e.DeviceID,
			GlobalWorkSize: e.GlobalWorkSize,
			LocalWorkSize:  e.LocalWorkSize,
			HashesNumber:   e.HashesNumber,
		})
	}

	if len(specs) == 0 {
		return nil, &core.ConfigError{Entry: -1, Reason: fmt.Sprintf("no properly configured device found (%d entries rejected)", len(entries))}
	}
	return specs, nil
}

func validateEntry(e entry, limits PlatformLimits) (reason string, ok bool) {
	count, found := limits.DeviceCount(e.PlatformID)
	if !found {
		return "no platform found with the provided id", false
	}
	if e.DeviceID >= count {
		return "no device found with the provided id", false
	}
	spec := plotgen.DeviceSpec{
		GlobalWorkSize: e.GlobalWorkSize,
		LocalWorkSize:  e.LocalWorkSize,
		HashesNumber:   e.HashesNumber,
	}
	if err := spec.Normalize(); err != nil {
		return err.Error(), false
	}
	return "", true
}
