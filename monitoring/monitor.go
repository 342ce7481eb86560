// Package monitoring turns a running simulation into a small web server that
// can inspect nodes, links and applications, and pause or resume the engine.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	// Enable profiling
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/netsim/app"
	"github.com/sarchlab/netsim/idgen"
	"github.com/sarchlab/netsim/logging"
	"github.com/sarchlab/netsim/network"
	"github.com/sarchlab/netsim/timing"
)

// Monitor serves the state of a running simulation over HTTP. It lists the
// registered nodes, links and applications, reports link queue occupancy and
// lets clients pause and resume the engine.
type Monitor struct {
	engine     timing.Engine
	nodes      []*network.Node
	links      []network.Link
	apps       []app.Application
	metrics    http.Handler
	portNumber int
	logger     logging.Logger
	ids        idgen.Generator
	server     *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a Monitor with no registered elements.
func NewMonitor() *Monitor {
	return &Monitor{
		logger: logging.Noop(),
		ids:    idgen.New(),
	}
}

// WithLogger sets the logger of the monitor.
func (m *Monitor) WithLogger(l logging.Logger) *Monitor {
	m.logger = l
	return m
}

// WithPortNumber sets the port number of the monitor. Ports below 1000 are
// replaced by a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		m.logger.Warn(context.Background(),
			"monitor port not allowed, using a random port instead",
			logging.Int("port", portNumber))
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterNode registers a node to be monitored.
func (m *Monitor) RegisterNode(n *network.Node) {
	m.nodes = append(m.nodes, n)
}

// RegisterLink registers a link to be monitored.
func (m *Monitor) RegisterLink(l network.Link) {
	m.links = append(m.links, l)
}

// RegisterApplication registers an application to be monitored.
func (m *Monitor) RegisterApplication(a app.Application) {
	m.apps = append(m.apps, a)
}

// RegisterMetrics serves h under /metrics.
func (m *Monitor) RegisterMetrics(h http.Handler) {
	m.metrics = h
}

// CreateProgressBar creates a bar reported by the progress API.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := newProgressBar(m.ids.Generate().String(), name, total)

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar stops reporting pb on the progress API.
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

// Router returns the routes of the monitoring API.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/list_nodes", m.listNodes)
	r.HandleFunc("/api/node/{name}", m.nodeDetails)
	r.HandleFunc("/api/list_links", m.listLinks)
	r.HandleFunc("/api/link/{name}", m.linkDetails)
	r.HandleFunc("/api/list_apps", m.listApps)
	r.HandleFunc("/api/app/{name}", m.appDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/queues", m.queues)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	if m.metrics != nil {
		r.Handle("/metrics", m.metrics)
	}

	return r
}

// StartServer starts the monitor as a web server and returns the address it
// listens on.
func (m *Monitor) StartServer() (string, error) {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("monitoring: listen on %s: %w", actualPort, err)
	}

	addr := fmt.Sprintf("http://localhost:%d", listener.Addr().(*net.TCPAddr).Port)
	m.logger.Info(context.Background(), "monitoring simulation",
		logging.String("url", addr))

	m.server = &http.Server{
		Handler:           m.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error(context.Background(), "monitoring server stopped",
				logging.Err(err))
		}
	}()

	return addr, nil
}

// StopServer shuts the web server down.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	return m.server.Shutdown(ctx)
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	if !m.engineOr503(w) {
		return
	}

	now := m.engine.CurrentTime()
	fmt.Fprintf(w, "{\"now\":%.10f}", float64(now))
}

func (m *Monitor) engineOr503(w http.ResponseWriter) bool {
	if m.engine != nil {
		return true
	}

	http.Error(w, "no engine registered", http.StatusServiceUnavailable)

	return false
}

func (m *Monitor) listNodes(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.nodes))
	for _, n := range m.nodes {
		names = append(names, n.Name())
	}

	m.writeJSON(w, names)
}

func (m *Monitor) listLinks(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.links))
	for _, l := range m.links {
		names = append(names, l.Name())
	}

	m.writeJSON(w, names)
}

func (m *Monitor) listApps(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.apps))
	for _, a := range m.apps {
		names = append(names, a.Name())
	}

	m.writeJSON(w, names)
}

func (m *Monitor) nodeDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, n := range m.nodes {
		if n.Name() == name {
			m.serialize(w, n, nil)
			return
		}
	}

	http.Error(w, "Node not found", http.StatusNotFound)
}

func (m *Monitor) linkDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, l := range m.links {
		if l.Name() == name {
			m.serialize(w, l, nil)
			return
		}
	}

	http.Error(w, "Link not found", http.StatusNotFound)
}

func (m *Monitor) appDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, a := range m.apps {
		if a.Name() == name {
			m.serialize(w, a, nil)
			return
		}
	}

	http.Error(w, "Application not found", http.StatusNotFound)
}

type fieldReq struct {
	Element   string `json:"element,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	elem := m.findElement(req.Element)
	if elem == nil {
		http.Error(w, "Element not found", http.StatusNotFound)
		return
	}

	m.serialize(w, elem, strings.Split(req.FieldName, "."))
}

func (m *Monitor) findElement(name string) any {
	for _, n := range m.nodes {
		if n.Name() == name {
			return n
		}
	}

	for _, l := range m.links {
		if l.Name() == name {
			return l
		}
	}

	for _, a := range m.apps {
		if a.Name() == name {
			return a
		}
	}

	return nil
}

func (m *Monitor) serialize(w http.ResponseWriter, root any, entry []string) {
	buf := bytes.NewBuffer(nil)

	serializer := goseth.NewSerializer()
	serializer.SetRoot(root)
	serializer.SetMaxDepth(1)

	if entry != nil {
		if err := serializer.SetEntryPoint(entry); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := serializer.Serialize(buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	m.write(w, buf.Bytes())
}

type queuedLink interface {
	QueueLen() int
}

type queueRsp struct {
	Link     string `json:"link"`
	Level    int    `json:"level"`
	Capacity int    `json:"cap"`
}

func (q queueRsp) percent() float64 {
	if q.Capacity == 0 {
		return 0
	}

	return float64(q.Level) / float64(q.Capacity)
}

func (m *Monitor) queues(w http.ResponseWriter, r *http.Request) {
	sortMethod, limit, offset, err := queuesParseParams(r)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %s", err), http.StatusBadRequest)
		return
	}

	m.writeJSON(w, m.sortAndSelectQueues(sortMethod, limit, offset))
}

func queuesParseParams(r *http.Request) (sort string, limit, offset int, err error) {
	sortMethod := r.URL.Query().Get("sort")
	if sortMethod == "" {
		sortMethod = "level"
	}
	if sortMethod != "level" && sortMethod != "percent" {
		return "", 0, 0, fmt.Errorf(
			"invalid sort method: %s. Allowed values are `level` and `percent`",
			sortMethod)
	}

	limitNumber, err := intParam(r, "limit")
	if err != nil {
		return sortMethod, 0, 0, err
	}

	offsetNumber, err := intParam(r, "offset")
	if err != nil {
		return sortMethod, limitNumber, 0, err
	}

	return sortMethod, limitNumber, offsetNumber, nil
}

func intParam(r *http.Request, name string) (int, error) {
	str := r.URL.Query().Get(name)
	if str == "" {
		return 0, nil
	}

	n, err := strconv.Atoi(str)
	if err != nil {
		return 0, err
	}

	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", name)
	}

	return n, nil
}

// sortAndSelectQueues lists the links with frames waiting. A limit of zero
// returns everything after offset.
func (m *Monitor) sortAndSelectQueues(
	sortMethod string,
	limit, offset int,
) []queueRsp {
	queues := make([]queueRsp, 0, len(m.links))

	for _, l := range m.links {
		ql, ok := l.(queuedLink)
		if !ok {
			continue
		}

		q := queueRsp{Link: l.Name(), Level: ql.QueueLen()}
		if p2p, ok := l.(*network.PointToPointLink); ok {
			q.Capacity = 2 * p2p.QueueCapacity()
		}

		queues = append(queues, q)
	}

	sort.SliceStable(queues, func(i, j int) bool {
		a, b := queues[i], queues[j]

		if sortMethod == "percent" && a.percent() != b.percent() {
			return a.percent() > b.percent()
		}

		if a.Level != b.Level {
			return a.Level > b.Level
		}

		return a.percent() > b.percent()
	})

	if offset > len(queues) {
		offset = len(queues)
	}

	end := len(queues)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	return queues[offset:end]
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.writeJSON(w, m.progressBars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	memory, err := proc.MemoryInfo()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memory.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	m.writeJSON(w, prof)
}

func (m *Monitor) writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	m.write(w, data)
}

func (m *Monitor) write(w http.ResponseWriter, data []byte) {
	if _, err := w.Write(data); err != nil {
		m.logger.Warn(context.Background(), "monitoring response not sent",
			logging.Err(err))
	}
}
