// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT
//
// Package diag keeps a periodic, post-mortem-only record of job progress.
// Grounded on internal/curator/durable's snappy-compressed snapshot framing
// and internal/raftkv/db's bolt bucket-per-epoch convention. It is
// diagnostic only: nothing in this repository reads it back to resume a
// plot (resumable plotting is an explicit non-goal); it exists so a human
// can later reconstruct how far a crashed run got.
package diag

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	"github.com/golang/snappy"

	"github.com/masterhamby/gpuPlotGenerator/internal/plotgen"
)

var runsBucket = []byte("runs")

// Record is one compressed, gob-encoded progress sample.
type Record struct {
	NoncesWrittenTotal uint64
	NoncesNumberTotal  uint64
	ElapsedSeconds     float64
	At                 time.Time
}

// Log is an append-only, per-run sequence of Records backed by a bolt
// bucket named after the run's start time.
type Log struct {
	db     *bolt.DB
	bucket []byte
	seq    uint64
}

// Open opens (or creates) the bolt database at path and starts a new run
// bucket keyed by runStarted.
func Open(path string, runStarted time.Time) (*Log, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening diagnostics db %q: %w", path, err)
	}
	bucket := []byte(runStarted.UTC().Format(time.RFC3339Nano))
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(runsBucket)
		if err != nil {
			return err
		}
		runs, err := tx.Bucket(runsBucket).CreateBucketIfNotExists(bucket)
		_ = runs
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating run bucket: %w", err)
	}
	return &Log{db: db, bucket: bucket}, nil
}

// Close closes the underlying bolt database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append snappy-compresses and gob-encodes snap, then appends it as the next
// sequence entry in this run's bucket.
func (l *Log) Append(snap plotgen.Snapshot) error {
	var plain bytes.Buffer
	if err := gob.NewEncoder(&plain).Encode(Record{
		NoncesWrittenTotal: snap.NoncesWrittenTotal,
		NoncesNumberTotal:  snap.NoncesNumberTotal,
		ElapsedSeconds:     snap.ElapsedSeconds,
		At:                 time.Now(),
	}); err != nil {
		return fmt.Errorf("encoding diagnostics record: %w", err)
	}

	compressed := snappy.Encode(nil, plain.Bytes())

	return l.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket(runsBucket).Bucket(l.bucket)
		l.seq++
		var key [8]byte
		for i := range key {
			key[i] = byte(l.seq >> (8 * uint(len(key)-1-i)))
		}
		return runs.Put(key[:], compressed)
	})
}

// Records reads back every Record in the run bucket named bucketName, for
// post-mortem inspection. Not used by the generation pipeline itself.
func Records(path string, bucketName string) ([]Record, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true, Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var out []Record
	err = db.View(func(tx *bolt.Tx) error {
		runs := tx.Bucket(runsBucket)
		if runs == nil {
			return fmt.Errorf("no runs recorded")
		}
		b := runs.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("no such run %q", bucketName)
		}
		return b.ForEach(func(_, v []byte) error {
			plain, err := snappy.Decode(nil, v)
			if err != nil {
				return err
			}
			var rec Record
			if err := gob.NewDecoder(bytes.NewReader(plain)).Decode(&rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
