// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"flag"
	"os"
)

func main() {
	// Send our own log output to stderr.
	flag.Set("logtostderr", "true")
	flag.Parse()

	a := newApp()
	if err := a.run(os.Args); err != nil {
		os.Exit(-1)
	}
}
