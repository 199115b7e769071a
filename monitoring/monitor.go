// Package monitoring serves the state of running TLBs over HTTP.
package monitoring

import (
	"bytes"
	"context"
	"errors"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"reflect"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/rs/xid"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
)

// A Component is anything the monitor can list and dump.
type Component interface {
	Name() string
}

// Monitor turns a running workload into a server and allows external
// monitoring and pausing of the workload.
//
// The workload must hold Locker() while it drives registered TLBs. Handlers
// that read TLB state take the same lock.
type Monitor struct {
	portNumber int
	components []Component
	tlbs       []*tlb.TLB

	machineLock sync.Mutex
	pauseLock   sync.Mutex
	paused      bool

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar

	server *http.Server
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
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

// Locker returns the lock that serializes the workload with the handlers.
func (m *Monitor) Locker() sync.Locker {
	return &m.machineLock
}

// RegisterComponent register a component to be monitored.
func (m *Monitor) RegisterComponent(c Component) {
	m.components = append(m.components, c)
}

// RegisterTLB registers a TLB whose statistics and entries are served.
func (m *Monitor) RegisterTLB(t *tlb.TLB) {
	m.tlbs = append(m.tlbs, t)
	m.RegisterComponent(t)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        xid.New().String(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
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

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pause)
	r.HandleFunc("/api/continue", m.resume)
	r.HandleFunc("/api/list_components", m.listComponents)
	r.HandleFunc("/api/component/{name}", m.listComponentDetails)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/value/{name}/{path}", m.fieldValue)
	r.HandleFunc("/api/tlbs", m.listTLBs)
	r.HandleFunc("/api/tlb/{name}", m.tlbDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring TLBs with %s\n", url)

	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if !errors.Is(err, http.ErrServerClosed) {
			dieOnErr(err)
		}
	}()

	return url
}

// StopServer shuts the server down, waiting for running handlers to return.
// A paused workload is released.
func (m *Monitor) StopServer(ctx context.Context) error {
	if m.server == nil {
		return nil
	}

	err := m.server.Shutdown(ctx)
	m.server = nil

	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if m.paused {
		m.paused = false
		m.machineLock.Unlock()
	}

	return err
}

// withMachine runs f while the workload is stopped.
func (m *Monitor) withMachine(f func()) {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if !m.paused {
		m.machineLock.Lock()
		defer m.machineLock.Unlock()
	}

	f()
}

func (m *Monitor) pause(w http.ResponseWriter, _ *http.Request) {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if !m.paused {
		m.machineLock.Lock()
		m.paused = true
	}

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) resume(w http.ResponseWriter, _ *http.Request) {
	m.pauseLock.Lock()
	defer m.pauseLock.Unlock()

	if m.paused {
		m.machineLock.Unlock()
		m.paused = false
	}

	_, err := w.Write(nil)
	dieOnErr(err)
}

func (m *Monitor) listComponents(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) listComponentDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	component := m.findComponentOr404(w, name)
	if component == nil {
		return
	}

	m.withMachine(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)
		err := serializer.Serialize(w)

		dieOnErr(err)
	})
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	jsonString := mux.Vars(r)["json"]
	req := fieldReq{}

	err := json.Unmarshal([]byte(jsonString), &req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields := strings.Split(req.FieldName, ".")

	component := m.findComponentOr404(w, req.CompName)
	if component == nil {
		return
	}

	m.withMachine(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(component)
		serializer.SetMaxDepth(1)

		err = serializer.SetEntryPoint(fields)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err = serializer.Serialize(w)
		dieOnErr(err)
	})
}

func (m *Monitor) fieldValue(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	component := m.findComponentOr404(w, vars["name"])
	if component == nil {
		return
	}

	m.withMachine(func() {
		elem, err := m.walkFields(component, vars["path"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		writeJSON(w, map[string]string{
			"type":  elem.Type().String(),
			"value": fmt.Sprint(elem),
		})
	})
}

type tlbSummary struct {
	Name     string    `json:"name"`
	Capacity int       `json:"capacity"`
	ITLBLen  int       `json:"itlb_len"`
	DTLBLen  int       `json:"dtlb_len"`
	Stats    tlb.Stats `json:"stats"`
}

type tlbDetail struct {
	tlbSummary
	ITLB []string `json:"itlb"`
	DTLB []string `json:"dtlb"`
}

func summarize(t *tlb.TLB) tlbSummary {
	return tlbSummary{
		Name:     t.Name(),
		Capacity: t.Capacity(),
		ITLBLen:  t.Len(vm.ClassInstruction),
		DTLBLen:  t.Len(vm.ClassData),
		Stats:    t.Stats(),
	}
}

func entryStrings(entries []vm.TLBEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.String())
	}

	return out
}

func (m *Monitor) listTLBs(w http.ResponseWriter, _ *http.Request) {
	summaries := make([]tlbSummary, 0, len(m.tlbs))

	m.withMachine(func() {
		for _, t := range m.tlbs {
			summaries = append(summaries, summarize(t))
		}
	})

	writeJSON(w, summaries)
}

func (m *Monitor) tlbDetails(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var found *tlb.TLB

	for _, t := range m.tlbs {
		if t.Name() == name {
			found = t
		}
	}

	if found == nil {
		http.Error(w, "TLB not found", http.StatusNotFound)
		return
	}

	var detail tlbDetail

	m.withMachine(func() {
		detail = tlbDetail{
			tlbSummary: summarize(found),
			ITLB:       entryStrings(found.Entries(vm.ClassInstruction)),
			DTLB:       entryStrings(found.Entries(vm.ClassData)),
		}
	})

	writeJSON(w, detail)
}

type fieldFormatError struct {
	field string
}

func (e fieldFormatError) Error() string {
	return "cannot walk into field " + e.field
}

func (m *Monitor) walkFields(
	comp any,
	fields string,
) (reflect.Value, error) {
	elem := reflect.ValueOf(comp)

	fieldNames := strings.Split(fields, ".")

	for len(fieldNames) > 0 {
		switch elem.Kind() {
		case reflect.Ptr, reflect.Interface:
			elem = elem.Elem()
		case reflect.Struct:
			elem = elem.FieldByName(fieldNames[0])
			if !elem.IsValid() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			fieldNames = fieldNames[1:]
		case reflect.Slice:
			index, err := strconv.Atoi(fieldNames[0])
			if err != nil || index < 0 || index >= elem.Len() {
				return elem, fieldFormatError{fieldNames[0]}
			}

			elem = elem.Index(index)
			fieldNames = fieldNames[1:]
		default:
			return elem, fieldFormatError{fieldNames[0]}
		}
	}

	if elem.Kind() == reflect.Ptr {
		elem = elem.Elem()
	}

	return elem, nil
}

func (m *Monitor) findComponentOr404(
	w http.ResponseWriter,
	name string,
) Component {
	for _, c := range m.components {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("Component not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	bars := make([]*ProgressBar, len(m.progressBars))
	copy(bars, m.progressBars)
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

func (m *Monitor) collectProfile(w http.ResponseWriter, r *http.Request) {
	duration := time.Second

	if s := r.URL.Query().Get("seconds"); s != "" {
		seconds, err := strconv.ParseFloat(s, 64)
		if err != nil || seconds < 0 {
			http.Error(w, "invalid seconds", http.StatusBadRequest)
			return
		}

		duration = time.Duration(seconds * float64(time.Second))
	}

	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(duration)

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
