// Package monitoring turns a running simulation into a read-only web server.
// The monitor exposes the module tree, the port bindings, the trace recorder
// and the progress of the run, and never changes the simulation state.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/xid"
	"github.com/sarchlab/pipesim/monitoring/web"
	"github.com/sarchlab/pipesim/sim/module"
	"github.com/sarchlab/pipesim/sim/port"
	"github.com/sarchlab/pipesim/tracing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor can turn a simulation into a server and allows external monitoring
// of the simulation.
type Monitor struct {
	runID      string
	root       *module.Root
	recorder   *tracing.Recorder
	portNumber int

	registry *prometheus.Registry
	metrics  *PortMetrics

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server   *http.Server
	listener net.Listener
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	reg := prometheus.NewRegistry()

	return &Monitor{
		runID:    xid.New().String(),
		registry: reg,
		metrics:  NewPortMetrics(reg),
	}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RunID returns the unique id of the monitored run.
func (m *Monitor) RunID() string {
	return m.runID
}

// Metrics returns the port counters of the monitor.
func (m *Monitor) Metrics() *PortMetrics {
	return m.metrics
}

// RegisterRoot registers the module tree to monitor. The ports must be
// declared before, as the traffic counters are attached to them here.
func (m *Monitor) RegisterRoot(r *module.Root) {
	m.root = r
	m.recorder = r.Recorder()

	m.metrics.Attach(r.Registry().Ports())
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		id:        xid.New().String(),
		name:      name,
		startTime: time.Now(),
		total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler of the monitor.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	fServer := http.FileServer(web.GetAssets())
	r.HandleFunc("/api/run", m.runInfo)
	r.HandleFunc("/api/topology", m.topology)
	r.HandleFunc("/api/modules", m.listModules)
	r.HandleFunc("/api/module/{name}", m.moduleDetails)
	r.HandleFunc("/api/trace", m.traceStatus)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	r.PathPrefix("/").Handler(fServer)

	return r
}

// StartServer starts the monitor as a web server with a custom port if wanted.
func (m *Monitor) StartServer() error {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return err
	}

	m.listener = listener
	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", m.URL())

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "Monitoring server stopped: %v\n", err)
		}
	}()

	return nil
}

// URL returns the address of the running server. It is empty before the
// server starts.
func (m *Monitor) URL() string {
	if m.listener == nil {
		return ""
	}

	return fmt.Sprintf("http://localhost:%d",
		m.listener.Addr().(*net.TCPAddr).Port)
}

// StopServer shuts the server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) runInfo(w http.ResponseWriter, _ *http.Request) {
	name := ""
	if m.root != nil {
		name = m.root.Name()
	}

	writeJSON(w, map[string]string{
		"run_id": m.runID,
		"root":   name,
	})
}

func (m *Monitor) rootOr404(w http.ResponseWriter) *module.Root {
	if m.root == nil {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("No simulation registered"))
		dieOnErr(err)
	}

	return m.root
}

func (m *Monitor) topology(w http.ResponseWriter, _ *http.Request) {
	root := m.rootOr404(w)
	if root == nil {
		return
	}

	writeJSON(w, root.Topology())
}

func (m *Monitor) listModules(w http.ResponseWriter, _ *http.Request) {
	root := m.rootOr404(w)
	if root == nil {
		return
	}

	names := []string{}
	for _, mod := range root.Modules() {
		names = append(names, mod.Name())
	}

	writeJSON(w, names)
}

type portDetail struct {
	Key       string
	Direction string
	Type      string
	Bandwidth uint32
	Latency   uint32
	Bound     bool
}

type moduleDetail struct {
	Name       string
	Path       string
	Root       bool
	Children   []string
	WritePorts []portDetail
	ReadPorts  []portDetail
}

func describePort(p port.Port) portDetail {
	d := portDetail{
		Key:       p.Key(),
		Direction: p.Direction().String(),
		Type:      string(p.TypeTag()),
	}

	switch p := p.(type) {
	case port.WriteEndpoint:
		d.Bandwidth = p.Bandwidth()
		d.Bound = len(p.Readers()) > 0
	case port.ReadEndpoint:
		d.Latency = p.Latency()
		d.Bound = p.Source() != nil
	}

	return d
}

func describeModule(mod module.Module) moduleDetail {
	d := moduleDetail{
		Name: mod.Name(),
		Path: mod.Path(),
		Root: mod.IsRoot(),
	}

	for _, c := range mod.Children() {
		d.Children = append(d.Children, c.Name())
	}

	for _, p := range mod.WritePorts() {
		d.WritePorts = append(d.WritePorts, describePort(p))
	}

	for _, p := range mod.ReadPorts() {
		d.ReadPorts = append(d.ReadPorts, describePort(p))
	}

	return d
}

func (m *Monitor) moduleDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	root := m.rootOr404(w)
	if root == nil {
		return
	}

	mod, found := root.Lookup(name)
	if !found {
		w.WriteHeader(http.StatusNotFound)
		_, err := w.Write([]byte("Module not found"))
		dieOnErr(err)

		return
	}

	detail := describeModule(mod)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(&detail)
	serializer.SetMaxDepth(3)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

type traceRsp struct {
	Active     bool   `json:"active"`
	Window     string `json:"window"`
	Tracked    int    `json:"tracked"`
	NumRecords int    `json:"num_records"`
	NumEntries int    `json:"num_entries"`
	Flushed    bool   `json:"flushed"`
}

func (m *Monitor) traceStatus(w http.ResponseWriter, _ *http.Request) {
	if m.recorder == nil {
		writeJSON(w, traceRsp{})
		return
	}

	writeJSON(w, traceRsp{
		Active:     m.recorder.Active(),
		Window:     m.recorder.Window().String(),
		Tracked:    m.recorder.NumTracked(),
		NumRecords: m.recorder.NumRecords(),
		NumEntries: m.recorder.NumEntries(),
		Flushed:    m.recorder.Flushed(),
	})
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]progressSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}
	m.progressBarsLock.Unlock()

	writeJSON(w, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
