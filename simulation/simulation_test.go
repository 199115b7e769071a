package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtlb/datarecording"
	"github.com/sarchlab/rvtlb/mem/mem"
	"github.com/sarchlab/rvtlb/mem/trace"
	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/workload"
)

var smallWorkload = workload.Synthetic{
	Seed:          3,
	NumSpaces:     2,
	PagesPerSpace: 8,
	Accesses:      200,
	SwitchEvery:   50,
	FenceEvery:    70,
}

var _ = Describe("Simulation", func() {
	It("should assemble a hart", func() {
		s := MakeBuilder().
			WithoutMonitoring().
			WithName("Hart3").
			WithNumEntries(4).
			WithMemorySize(2 * mem.MB).
			Build()

		Expect(s.ID()).NotTo(BeEmpty())
		Expect(s.MMU().Name()).To(Equal("Hart3"))
		Expect(s.TLB().Name()).To(Equal("Hart3.TLB"))
		Expect(s.TLB().Capacity()).To(Equal(4))
		Expect(s.MMU().Storage().Capacity()).To(Equal(2 * mem.MB))
		Expect(s.GetMonitor()).To(BeNil())
		Expect(s.GetDataRecorder()).To(BeNil())
		Expect(s.Terminate()).To(Succeed())
	})

	It("should register components by name", func() {
		s := MakeBuilder().WithoutMonitoring().Build()

		Expect(s.Components()).To(HaveLen(2))
		Expect(s.GetComponentByName("Hart0")).To(BeIdenticalTo(s.MMU()))
		Expect(s.GetComponentByName("Hart0.TLB")).To(BeIdenticalTo(s.TLB()))
		Expect(s.GetComponentByName("Hart1")).To(BeNil())
		Expect(func() { s.RegisterComponent(s.TLB()) }).To(Panic())
	})

	It("should refuse a port without monitoring", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMonitorPort(8080).Build()
		}).To(Panic())
	})

	It("should refuse memory smaller than a page", func() {
		Expect(func() {
			MakeBuilder().WithoutMonitoring().WithMemorySize(100).Build()
		}).To(Panic())
	})

	It("should pass TLB events to extra hooks", func() {
		buf := new(bytes.Buffer)
		s := MakeBuilder().
			WithoutMonitoring().
			WithMemorySize(4 * mem.MB).
			WithHook(vm.NewTLBTracer(buf)).
			Build()

		_, err := smallWorkload.Run(context.Background(), s.Machine())
		Expect(err).NotTo(HaveOccurred())
		Expect(buf.String()).To(ContainSubstring("Hart0.TLB,"))
	})

	It("should record TLB events and exec info", func() {
		path := filepath.Join(GinkgoT().TempDir(), "run")
		s := MakeBuilder().
			WithoutMonitoring().
			WithMemorySize(4 * mem.MB).
			WithDataRecorder(datarecording.New(path)).
			Build()

		report, err := smallWorkload.Run(context.Background(), s.Machine())
		Expect(err).NotTo(HaveOccurred())

		s.RecordExecInfo("Accesses", "200")
		Expect(s.Terminate()).To(Succeed())

		reader := datarecording.NewReader(path + ".sqlite3")
		defer reader.Close()

		tables, err := reader.StoredTables(context.Background())
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(ContainElements(trace.TableName,
			datarecording.ExecInfoTable))

		reader.MapTable(datarecording.ExecInfoTable, datarecording.ExecInfo{})
		infos, _, err := reader.Query(context.Background(),
			datarecording.ExecInfoTable,
			datarecording.QueryParams{Where: "Property = ?", Args: []any{"Accesses"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(infos).To(HaveLen(1))

		stats := report.TLB.Instruction.Lookups() + report.TLB.Data.Lookups()
		Expect(stats).To(BeNumerically(">", 0))
	})

	It("should serve the TLB on the monitor", func() {
		s := MakeBuilder().WithMemorySize(4 * mem.MB).Build()
		Expect(s.MonitorURL()).To(HavePrefix("http://localhost:"))

		_, err := smallWorkload.Run(context.Background(), s.Machine())
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get(s.MonitorURL() + "/api/tlbs")
		Expect(err).NotTo(HaveOccurred())
		defer rsp.Body.Close()

		var tlbs []map[string]any
		Expect(json.NewDecoder(rsp.Body).Decode(&tlbs)).To(Succeed())
		Expect(tlbs).To(HaveLen(1))
		Expect(tlbs[0]["name"]).To(Equal("Hart0.TLB"))

		Expect(s.Terminate()).To(Succeed())
		_, err = http.Get(s.MonitorURL() + "/api/tlbs")
		Expect(err).To(HaveOccurred())
	})

	It("should destroy the TLB on terminate", func() {
		s := MakeBuilder().WithoutMonitoring().Build()
		Expect(s.Terminate()).To(Succeed())

		Expect(func() { s.TLB().Capacity() }).To(Panic())
		Expect(func() { _ = s.Terminate() }).To(Panic())
	})
})
