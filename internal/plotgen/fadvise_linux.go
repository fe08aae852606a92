// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build linux

package plotgen

import (
	"os"

	"golang.org/x/sys/unix"
)

// fadviseRandom hints to the OS that this file will not be read back
// sequentially, so it shouldn't waste buffer cache on read-ahead for it.
// Grounded on pkg/disk's syscall_linux.go Fadvise wrapper.
func fadviseRandom(f *os.File) error {
	return unix.Fadvise(int(f.Fd()), 0, 0, unix.FADV_RANDOM)
}
