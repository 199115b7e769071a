package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
)

type sampleStruct struct {
	field1 int
	field2 string
	field3 *sampleStruct
	field4 []sampleStruct
}

type sampleComponent struct {
	name  string
	inner sampleStruct
}

func (c *sampleComponent) Name() string {
	return c.name
}

func get(m *Monitor, url string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	m.router().ServeHTTP(rec, req)

	return rec
}

var _ = Describe("Monitor", func() {
	var (
		m *Monitor
		t *tlb.TLB
	)

	BeforeEach(func() {
		m = NewMonitor()

		t = tlb.MakeBuilder().WithNumEntries(4).Build("Hart0.TLB")
		t.Refill(vm.ClassData,
			vm.TranslationReq{VAddr: 0x1000, Mode: vm.PrivSupervisor, ASID: 1},
			vm.Translation{PPN: 0x8000, Level: vm.LevelPage, Perm: vm.PermRW})
		t.Lookup(vm.ClassData,
			vm.TranslationReq{VAddr: 0x1004, Mode: vm.PrivSupervisor, ASID: 1})

		m.RegisterTLB(t)
		m.RegisterComponent(&sampleComponent{name: "Sample"})
	})

	It("should fall back to a random port", func() {
		Expect(m.WithPortNumber(80).portNumber).To(Equal(0))
		Expect(m.WithPortNumber(8080).portNumber).To(Equal(8080))
	})

	It("should list components", func() {
		rec := get(m, "/api/list_components")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal(`["Hart0.TLB","Sample"]`))
	})

	It("should summarize TLBs", func() {
		rec := get(m, "/api/tlbs")

		var summaries []tlbSummary
		Expect(json.Unmarshal(rec.Body.Bytes(), &summaries)).To(Succeed())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Capacity).To(Equal(4))
		Expect(summaries[0].DTLBLen).To(Equal(1))
		Expect(summaries[0].Stats.Data.Hits).To(Equal(uint64(1)))
	})

	It("should show TLB entries", func() {
		rec := get(m, "/api/tlb/Hart0.TLB")

		var detail tlbDetail
		Expect(json.Unmarshal(rec.Body.Bytes(), &detail)).To(Succeed())
		Expect(detail.Name).To(Equal("Hart0.TLB"))
		Expect(detail.ITLB).To(BeEmpty())
		Expect(detail.DTLB).To(ConsistOf("vpn=0x1 ppn=0x8000 4K rw-- asid=1"))
	})

	It("should report unknown TLBs", func() {
		Expect(get(m, "/api/tlb/None").Code).To(Equal(http.StatusNotFound))
		Expect(get(m, "/api/component/None").Code).
			To(Equal(http.StatusNotFound))
	})

	It("should dump components", func() {
		rec := get(m, "/api/component/Sample")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.Len()).To(BeNumerically(">", 0))
	})

	It("should serve field values", func() {
		rec := get(m, "/api/value/Hart0.TLB/stats.Data.Hits")

		var rsp map[string]string
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp).To(Equal(map[string]string{
			"type":  "uint64",
			"value": "1",
		}))

		Expect(get(m, "/api/value/Sample/missing").Code).
			To(Equal(http.StatusBadRequest))
	})

	It("should track progress bars", func() {
		bar := m.CreateProgressBar("bench", 10)
		bar.IncrementInProgress(4)
		bar.MoveInProgressToFinished(3)

		var bars []map[string]any
		rec := get(m, "/api/progress")
		Expect(json.Unmarshal(rec.Body.Bytes(), &bars)).To(Succeed())
		Expect(bars).To(HaveLen(1))
		Expect(bars[0]["finished"]).To(BeNumerically("==", 3))
		Expect(bars[0]["in_progress"]).To(BeNumerically("==", 1))
		Expect(bars[0]["id"]).NotTo(BeEmpty())

		m.CompleteProgressBar(bar)
		Expect(get(m, "/api/progress").Body.String()).To(Equal("[]"))
	})

	It("should hold the workload while paused", func() {
		get(m, "/api/pause")
		Expect(m.paused).To(BeTrue())

		locked := make(chan struct{})
		go func() {
			m.Locker().Lock()
			close(locked)
			m.Locker().Unlock()
		}()

		Consistently(locked).ShouldNot(BeClosed())
		Expect(get(m, "/api/tlbs").Code).To(Equal(http.StatusOK))

		get(m, "/api/continue")
		Eventually(locked).Should(BeClosed())
		Expect(m.paused).To(BeFalse())
	})

	It("should stop serving and release a paused workload", func() {
		url := m.StartServer()

		rsp, err := http.Get(url + "/api/pause")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()
		Expect(m.paused).To(BeTrue())

		Expect(m.StopServer(context.Background())).To(Succeed())
		Expect(m.paused).To(BeFalse())

		m.Locker().Lock()
		m.Locker().Unlock()

		_, err = http.Get(url + "/api/tlbs")
		Expect(err).To(HaveOccurred())
		Expect(m.StopServer(context.Background())).To(Succeed())
	})

	It("should report resources", func() {
		rec := get(m, "/api/resource")

		var rsp resourceRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})

	It("should collect a profile", func() {
		rec := get(m, "/api/profile?seconds=0.01")

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(get(m, "/api/profile?seconds=-1").Code).
			To(Equal(http.StatusBadRequest))
	})

	Context("walking fields", func() {
		It("should walk int fields", func() {
			s := &sampleStruct{
				field1: 1,
			}

			elem, err := m.walkFields(s, "field1")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.Int))
			Expect(elem.Int()).To(Equal(int64(1)))
		})

		It("should walk string fields", func() {
			s := &sampleStruct{
				field2: "abc",
			}

			elem, err := m.walkFields(s, "field2")

			Expect(err).To(BeNil())
			Expect(elem.Kind()).To(Equal(reflect.String))
			Expect(elem.String()).To(Equal("abc"))
		})

		It("should walk recursively", func() {
			s := &sampleStruct{
				field3: &sampleStruct{
					field1: 1,
				},
			}

			elem, err := m.walkFields(s, "field3.field1")

			Expect(err).To(BeNil())
			Expect(elem.Int()).To(Equal(int64(1)))
		})

		It("should walk slice recursively", func() {
			s := &sampleStruct{
				field4: []sampleStruct{{
					field4: []sampleStruct{
						{field1: 1},
					},
				}, {}},
			}

			elem, err := m.walkFields(s, "field4.0.field4.0.field1")

			Expect(err).To(BeNil())
			Expect(elem.Int()).To(Equal(int64(1)))
		})

		It("should reject bad paths", func() {
			s := &sampleStruct{field4: []sampleStruct{{}}}

			_, err := m.walkFields(s, "field4.3")
			Expect(err).To(HaveOccurred())

			_, err = m.walkFields(s, "field1.x")
			Expect(err).To(HaveOccurred())
		})
	})
})
