// Copyright (c) 2015 Western Digital Corporation or its affiliates. All rights reserved.
// SPDX-License-Identifier: MIT

package plotgen

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"time"

	sigar "github.com/cloudfoundry/gosigar"
	log "github.com/golang/glog"
)

const statusTemplateStr = `
<!doctype html>
<html lang="en">
<head>
  <title>gpuplotgen status</title>
  <style>
    table.status {
      border-collapse: collapse;
    }
    table.status td {
      border: 1px solid #DDD;
      text-align: left;
      padding-left: 8px;
      padding-right: 8px;
      padding-top: 4px;
      padding-bottom: 4px;
    }
    table.status th {
      border: 1px solid #DDD;
      text-align: left;
      padding: 8px;
      background-color: #009900;
      color: white;
    }
    table.status tr:nth-child(even) {background-color: #F2F2F2;}
    table.status tr:hover {background-color: #DDD;}
  </style>
</head>

<body>

<h3>gpuplotgen</h3>

<table class="status">
  <caption>Host</caption>
  <tr>
    <td>Free memory:</td>
    <td>{{byteToMB .FreeMem}} / {{byteToMB .TotalMem}} mb</td>
  </tr>
  <tr>
    <td>Free disk ({{.OutputDir}}):</td>
    <td>{{byteToMB .FreeDisk}} / {{byteToMB .TotalDisk}} mb</td>
  </tr>
  <tr>
    <td>Started:</td>
    <td>{{.Started}}</td>
  </tr>
</table>

<br>
<table class="status">
  <caption>Progress</caption>
  <tr>
    <th>Metric</th>
    <th>Value</th>
  </tr>
  <tr>
    <td>Nonces written</td>
    <td>{{.Progress.NoncesWrittenTotal}} / {{.Progress.NoncesNumberTotal}}</td>
  </tr>
  <tr>
    <td>Elapsed</td>
    <td>{{.Progress.ElapsedSeconds}} s</td>
  </tr>
</table>

<br>
<table class="status">
  <caption>Devices</caption>
  <tr>
    <th>Platform</th>
    <th>Device</th>
    <th>Global work size</th>
    <th>Available</th>
  </tr>
  {{range .Devices}}
  <tr>
    <td>{{.Config.PlatformID}}</td>
    <td>{{.Config.DeviceID}}</td>
    <td>{{.Config.GlobalWorkSize}}</td>
    <td>{{.Available}}</td>
  </tr>
  {{end}}
</table>

<br>
status update time: {{.Now}}
</body>
</html>
`

func byteToMB(in uint64) uint64 {
	return in / 1024 / 1024
}

var (
	statusFuncMap  = template.FuncMap{"byteToMB": byteToMB}
	statusTemplate = template.Must(template.New("gpuplotgen_status").Funcs(statusFuncMap).Parse(statusTemplateStr))
)

// deviceStatus is the template-friendly view of one GenerationDevice.
type deviceStatus struct {
	Config    DeviceSpec
	Available bool
}

// statusData is what both the HTML and JSON status renderers serialize.
type statusData struct {
	FreeMem   uint64
	TotalMem  uint64
	OutputDir string
	FreeDisk  uint64
	TotalDisk uint64
	Started   time.Time
	Progress  Snapshot
	Devices   []deviceStatus
	Now       time.Time
}

// StatusServer exposes a Job's live progress and host resource usage over
// HTTP, as plain HTML or (with an "Accept: application/json" request
// header) JSON.
type StatusServer struct {
	job       *Job
	outputDir string
	started   time.Time
}

// NewStatusServer builds a status server for job. outputDir is the
// directory whose free space is reported (typically the directory holding
// the plot files being written).
func NewStatusServer(job *Job, outputDir string) *StatusServer {
	return &StatusServer{job: job, outputDir: outputDir, started: time.Now()}
}

// Handler returns an http.Handler serving the status page at "/".
func (s *StatusServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleStatus)
	return mux
}

func (s *StatusServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data := s.genStatus()
	if r.Header.Get("Accept") == "application/json" {
		s.handleJSON(w, data)
		return
	}
	s.handleHTML(w, data)
}

func (s *StatusServer) genStatus() statusData {
	mem := sigar.Mem{}
	if err := mem.Get(); err != nil {
		log.Errorf("failed to get memory info: %s", err)
	}

	disk := sigar.FileSystemUsage{}
	if err := disk.Get(s.outputDir); err != nil {
		log.Errorf("failed to get disk usage for %q: %s", s.outputDir, err)
	}

	// The status server runs on its own goroutine, so device.Available
	// (written only under the scheduler's mutex) must be read through the
	// scheduler rather than touched directly here.
	avail := s.job.scheduler.DeviceAvailability(s.job.devices)
	devices := make([]deviceStatus, len(s.job.devices))
	for i, d := range s.job.devices {
		devices[i] = deviceStatus{Config: d.Config, Available: avail[i]}
	}

	return statusData{
		FreeMem:   mem.ActualFree,
		TotalMem:  mem.Total,
		OutputDir: s.outputDir,
		FreeDisk:  disk.Free * 1024,
		TotalDisk: disk.Total * 1024,
		Started:   s.started,
		Progress:  s.job.Progress().Sample(),
		Devices:   devices,
		Now:       time.Now(),
	}
}

func (s *StatusServer) handleHTML(w http.ResponseWriter, data statusData) {
	var b bytes.Buffer
	if err := statusTemplate.Execute(&b, data); err != nil {
		e := fmt.Sprintf("failed to encode html status data: %s", err)
		log.Errorf(e)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(e))
		return
	}
	w.Header().Set("Content-Type", "text/html")
	w.Write(b.Bytes())
}

func (s *StatusServer) handleJSON(w http.ResponseWriter, data statusData) {
	var b bytes.Buffer
	if err := json.NewEncoder(&b).Encode(data); err != nil {
		e := fmt.Sprintf("failed to encode json status data: %s", err)
		log.Errorf(e)
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(e))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b.Bytes())
}
