// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/codegangsta/cli"
	shlex "github.com/flynn-archive/go-shlex"
	"github.com/peterh/liner"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	log "github.com/golang/glog"

	"github.com/masterhamby/gpuPlotGenerator/internal/computebackend/refcpu"
	"github.com/masterhamby/gpuPlotGenerator/internal/core"
	"github.com/masterhamby/gpuPlotGenerator/internal/devicecfg"
	"github.com/masterhamby/gpuPlotGenerator/internal/metrics"
	"github.com/masterhamby/gpuPlotGenerator/internal/plotgen"
	"github.com/masterhamby/gpuPlotGenerator/internal/plotgen/diag"
	"github.com/masterhamby/gpuPlotGenerator/internal/plotspec"
	"github.com/masterhamby/gpuPlotGenerator/pkg/slices"
)

var usage = `
	gpuplotgen computes Burst proof-of-capacity plot files.

	To generate one or more plot files, named <address>_<startNonce>_<noncesNumber>_<staggerSize>:

		gpuplotgen [--devices-config FILE] [--status-addr ADDR] generate <buffersNb> <plot-file>...

	buffersNb is the number of writer goroutines to run, a positive integer,
	or "auto" for one writer per plot file.

	To get an interactive prompt that repeats "generate" invocations without
	restarting the process:

		gpuplotgen shell
	`

// app wraps the cli.App together with the long-lived state a shell session
// needs across commands (the global flags and the op metrics). The device
// configuration is re-read on every "generate".
type app struct {
	cliApp *cli.App

	devicesConfigPath string
	statusAddr        string

	inShell bool

	// deviceOpm and writeOpm are created once and reused across every
	// "generate" invocation in this process (a shell session may run it
	// many times); Prometheus panics if the same metric name is
	// registered twice.
	deviceOpm *metrics.OpMetric
	writeOpm  *metrics.OpMetric
}

func newApp() *app {
	a := &app{
		deviceOpm: metrics.NewOpMetric("gpuplotgen_device", "op"),
		writeOpm:  metrics.NewOpMetric("gpuplotgen_write", "op"),
	}
	cliApp := cli.NewApp()
	cliApp.Name = "gpuplotgen"
	cliApp.Usage = usage
	cliApp.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "devices-config",
			Usage:       "path to a JSON device configuration file",
			Destination: &a.devicesConfigPath,
		},
		cli.StringFlag{
			Name:        "status-addr",
			Usage:       "if set, serve a status/metrics page on this address",
			Destination: &a.statusAddr,
		},
	}
	cliApp.Commands = []cli.Command{
		{
			Name:      "generate",
			Usage:     "compute and write one or more plot files",
			ArgsUsage: "<buffersNb> <plot-file>...",
			Action:    a.cmdGenerate,
		},
		{
			Name:   "shell",
			Usage:  "start an interactive prompt",
			Action: a.cmdShell,
		},
	}
	a.cliApp = cliApp
	return a
}

func (a *app) run(args []string) error {
	return a.cliApp.Run(args)
}

// loadDevices resolves the configured device list, falling back to a single
// deterministic CPU reference device when no --devices-config was given (so
// "generate" can be demonstrated on a machine with no GPU driver at all).
func (a *app) loadDevices() ([]*plotgen.GenerationDevice, error) {
	if a.devicesConfigPath == "" {
		backend := refcpu.New(1024)
		spec := plotgen.DeviceSpec{PlatformID: 0, DeviceID: 0, GlobalWorkSize: 1024, LocalWorkSize: 64, HashesNumber: 8}
		return []*plotgen.GenerationDevice{plotgen.NewGenerationDevice(spec, backend, a.deviceOpm)}, nil
	}

	f, err := os.Open(a.devicesConfigPath)
	if err != nil {
		return nil, &core.IoError{Path: a.devicesConfigPath, Err: err}
	}
	defer f.Close()

	// Real platform/device enumeration is an external collaborator; until
	// one is wired in, every configured platform is assumed to have as many
	// devices as the configuration references.
	limits := devicecfg.FixedLimits{}
	var probe []json.RawMessage
	if err := json.NewDecoder(f).Decode(&probe); err == nil {
		limits = inferLimits(probe)
		f.Seek(0, 0)
	}

	audit, err := devicecfg.OpenAudit("gpuplotgen-device-audit.db")
	if err != nil {
		log.Errorf("couldn't open device audit trail: %s", err)
		audit = nil
	} else {
		defer audit.Close()
	}

	specs, err := devicecfg.Load(f, limits, audit)
	if err != nil {
		return nil, err
	}

	devices := make([]*plotgen.GenerationDevice, len(specs))
	for i, spec := range specs {
		devices[i] = plotgen.NewGenerationDevice(spec, refcpu.New(spec.GlobalWorkSize), a.deviceOpm)
	}
	return devices, nil
}

// inferLimits builds a permissive FixedLimits table that allows every
// platform id referenced in raw to have an arbitrarily large device count,
// since no real enumeration is wired in.
func inferLimits(raw []json.RawMessage) devicecfg.FixedLimits {
	limits := devicecfg.FixedLimits{}
	for _, r := range raw {
		var partial struct {
			PlatformID int `json:"platform_id"`
		}
		if err := json.Unmarshal(r, &partial); err == nil {
			limits[partial.PlatformID] = 1 << 16
		}
	}
	return limits
}

func (a *app) cmdGenerate(c *cli.Context) error {
	args := c.Args()
	if len(args) < 2 {
		return fmt.Errorf("usage: generate <buffersNb> <plot-file>...")
	}

	buffersNbArg := args[0]
	paths := []string(args[1:])

	var seen []string
	for _, p := range paths {
		if slices.ContainsString(seen, p) {
			return fmt.Errorf("%s: each plot file must be listed only once", p)
		}
		seen = append(seen, p)
	}

	buffersNb, err := plotgen.ResolveBuffersNb(buffersNbArg, len(paths))
	if err != nil {
		return err
	}
	config := plotgen.Config{BuffersNb: buffersNb}
	if err := config.Validate(); err != nil {
		return err
	}

	devices, err := a.loadDevices()
	if err != nil {
		return err
	}

	contexts := make([]*plotgen.GenerationContext, 0, len(paths))
	for _, path := range paths {
		spec, err := plotspec.Parse(path)
		if err != nil {
			return err
		}
		if err := spec.Validate(); err != nil {
			return err
		}
		sink, err := plotgen.NewPlotSinkRetrying(context.Background(), path)
		if err != nil {
			return err
		}
		contexts = append(contexts, plotgen.NewGenerationContext(spec, sink))
	}

	diagLog, err := diag.Open("gpuplotgen-progress.db", time.Now())
	if err != nil {
		log.Errorf("couldn't open diagnostics log: %s", err)
		diagLog = nil
	} else {
		defer diagLog.Close()
	}

	job := plotgen.NewJob(config, devices, contexts, a.writeOpm, func(snap plotgen.Snapshot) {
		if diagLog != nil {
			if err := diagLog.Append(snap); err != nil {
				log.Errorf("diagnostics append failed: %s", err)
			}
		}
		printProgress(snap)
	})

	if a.statusAddr != "" {
		go serveStatus(a.statusAddr, job, paths[0])
	}

	if err := job.Run(); err != nil {
		return err
	}
	fmt.Println()
	fmt.Println("done")
	return nil
}

func printProgress(snap plotgen.Snapshot) {
	percent := 0.0
	if snap.NoncesNumberTotal > 0 {
		percent = 100 * float64(snap.NoncesWrittenTotal) / float64(snap.NoncesNumberTotal)
	}
	rate := 0.0
	if snap.ElapsedSeconds > 0 {
		rate = float64(snap.NoncesWrittenTotal) / snap.ElapsedSeconds
	}
	eta := "?"
	if rate > 0 {
		remaining := float64(snap.NoncesNumberTotal-snap.NoncesWrittenTotal) / rate
		eta = (time.Duration(remaining) * time.Second).String()
	}
	fmt.Printf("\r%.1f%% (%d/%d nonces), %.1f nonces/s, ETA %s   ",
		percent, snap.NoncesWrittenTotal, snap.NoncesNumberTotal, rate, eta)
}

func serveStatus(addr string, job *plotgen.Job, outputPath string) {
	dir := filepath.Dir(outputPath)
	status := plotgen.NewStatusServer(job, dir)
	mux := http.NewServeMux()
	mux.Handle("/", status.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	log.Infof("status server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Errorf("status server stopped: %s", err)
	}
}

// cmdShell implements the "shell" subcommand: repeat "generate" (and any
// other subcommand) without restarting the process.
func (a *app) cmdShell(c *cli.Context) error {
	a.inShell = true
	defer func() { a.inShell = false }()

	cli.OsExiter = func(int) {}

	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(func(line string) (c []string) {
		for _, cmd := range a.cliApp.Commands {
			if strings.HasPrefix(cmd.Name, line) {
				c = append(c, cmd.Name)
			}
		}
		return
	})
	defer ln.Close()

	for {
		input, err := ln.Prompt("(gpuplotgen) ")
		if err != nil {
			log.Errorf("error: %v", err)
			return nil
		}

		args, err := shlex.Split(input)
		if err != nil {
			log.Errorf("error: %v", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return nil
		}

		if err := a.cliApp.Run(append([]string{"gpuplotgen"}, args...)); err != nil {
			log.Errorf("error: %v", err)
			continue
		}
		ln.AppendHistory(input)
	}
}
