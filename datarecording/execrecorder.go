package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecInfoTable is the table an ExecRecorder writes into.
const ExecInfoTable = "exec_info"

const timeLayout = "2006-01-02 15:04:05.000000000"

// ExecInfo is one property of a program execution.
type ExecInfo struct {
	Property string
	Value    string
}

// An ExecRecorder records how the program was run.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []ExecInfo
}

// NewExecRecorder creates the exec_info table in recorder.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	e := &ExecRecorder{recorder: recorder}
	recorder.CreateTable(ExecInfoTable, ExecInfo{})

	return e
}

// Start logs the start time, the command line and the working directory.
func (e *ExecRecorder) Start() {
	e.Record("Start Time", time.Now().Format(timeLayout))
	e.Record("Command", strings.Join(os.Args, " "))

	cwd, err := os.Getwd()
	if err != nil {
		panic(err)
	}

	e.Record("Working Directory", cwd)
}

// Record adds a property, such as a configuration value.
func (e *ExecRecorder) Record(property, value string) {
	e.entries = append(e.entries, ExecInfo{property, value})
}

// End writes the properties along with the exit time.
func (e *ExecRecorder) End() {
	e.Record("End Time", time.Now().Format(timeLayout))

	for _, entry := range e.entries {
		e.recorder.InsertData(ExecInfoTable, entry)
	}

	e.entries = nil

	e.recorder.Flush()
}
