// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

//go:build !linux

package plotgen

import "os"

// fadviseRandom is a no-op on platforms without posix_fadvise.
func fadviseRandom(f *os.File) error {
	return nil
}
