package workload

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/tlb"
)

// ErrInvalidWorkload is returned when a synthetic workload cannot be set up.
var ErrInvalidWorkload = errors.New("invalid workload")

const (
	userBase     uint32 = 0x10000000
	kernelBase   uint32 = 0xC0000000
	physUserBase uint64 = 0x80000000
	maxPages            = 1 << 12
)

// Progress receives the number of accesses completed since the last report.
type Progress interface {
	IncrementFinished(amount uint64)
}

// Synthetic generates a random but reproducible workload. Every address space
// maps PagesPerSpace user pages scattered over a small window, and shares one
// global kernel megapage. Accesses hit mapped pages most of the time; the rest
// fault.
type Synthetic struct {
	Seed          int64
	NumSpaces     int
	PagesPerSpace int
	Accesses      int

	// SwitchEvery is the number of accesses between context switches and
	// FenceEvery between sfence.vma. Zero disables either.
	SwitchEvery int
	FenceEvery  int

	Progress Progress
}

// A SyntheticReport sums up a synthetic run.
type SyntheticReport struct {
	Accesses uint64    `json:"accesses"`
	Faults   uint64    `json:"faults"`
	Walks    uint64    `json:"walks"`
	Switches uint64    `json:"switches"`
	Fences   uint64    `json:"fences"`
	TLB      tlb.Stats `json:"tlb"`
}

type userPage struct {
	vAddr uint32
	perm  vm.Perm
}

type syntheticRun struct {
	Synthetic
	mc     *Machine
	rng    *rand.Rand
	pages  map[vm.ASID][]userPage
	asid   vm.ASID
	report SyntheticReport
}

func (s Synthetic) validate() error {
	switch {
	case s.NumSpaces <= 0 || s.NumSpaces > int(vm.MaxASID):
		return fmt.Errorf("%w: %d address spaces", ErrInvalidWorkload, s.NumSpaces)
	case s.PagesPerSpace <= 0 || s.PagesPerSpace > maxPages:
		return fmt.Errorf("%w: %d pages per space",
			ErrInvalidWorkload, s.PagesPerSpace)
	case s.Accesses < 0 || s.SwitchEvery < 0 || s.FenceEvery < 0:
		return fmt.Errorf("%w: negative count", ErrInvalidWorkload)
	}

	return nil
}

// Run installs the address spaces into mc and performs the accesses.
func (s Synthetic) Run(ctx context.Context, mc *Machine) (SyntheticReport, error) {
	if err := s.validate(); err != nil {
		return SyntheticReport{}, err
	}

	r := &syntheticRun{
		Synthetic: s,
		mc:        mc,
		rng:       rand.New(rand.NewSource(s.Seed)),
		pages:     make(map[vm.ASID][]userPage),
	}

	if err := r.setup(); err != nil {
		return SyntheticReport{}, err
	}

	if err := r.run(ctx); err != nil {
		return r.finish(), err
	}

	return r.finish(), nil
}

func (r *syntheticRun) setup() error {
	r.mc.lock()
	defer r.mc.unlock()

	perms := []vm.Perm{vm.PermRW | vm.PermU, vm.PermR | vm.PermU, vm.PermRX | vm.PermU}

	for i := 1; i <= r.NumSpaces; i++ {
		asid := vm.ASID(i)

		pt, err := r.mc.Space(asid)
		if err != nil {
			return err
		}

		err = pt.Map(kernelBase, 0, vm.LevelMegapage, vm.PermRWX, true)
		if err != nil {
			return err
		}

		window := r.rng.Perm(4 * r.PagesPerSpace)
		for j := 0; j < r.PagesPerSpace; j++ {
			page := userPage{
				vAddr: userBase + uint32(window[j])*vm.PageSize,
				perm:  perms[r.rng.Intn(len(perms))],
			}
			pAddr := physUserBase +
				uint64((i-1)*r.PagesPerSpace+j)*vm.PageSize

			err = pt.Map(page.vAddr, pAddr, vm.LevelPage, page.perm, false)
			if err != nil {
				return err
			}

			r.pages[asid] = append(r.pages[asid], page)
		}
	}

	r.asid = 1
	r.mc.MMU.SetPrivilege(vm.PrivUser)

	return r.mc.Switch(r.asid)
}

func (r *syntheticRun) run(ctx context.Context) error {
	for i := 1; i <= r.Accesses; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.step(i); err != nil {
			return err
		}

		if r.Progress != nil {
			r.Progress.IncrementFinished(1)
		}
	}

	return nil
}

func (r *syntheticRun) step(i int) error {
	r.mc.lock()
	defer r.mc.unlock()

	r.access()

	if r.SwitchEvery > 0 && i%r.SwitchEvery == 0 {
		if err := r.contextSwitch(); err != nil {
			return err
		}
	}

	if r.FenceEvery > 0 && i%r.FenceEvery == 0 {
		r.fence()
	}

	return nil
}

func (r *syntheticRun) access() {
	r.report.Accesses++

	kind, vAddr := r.pick()

	var err error
	if vAddr >= kernelBase {
		r.mc.MMU.SetPrivilege(vm.PrivSupervisor)
		_, err = r.mc.MMU.Translate(kind, vAddr)
		r.mc.MMU.SetPrivilege(vm.PrivUser)
	} else {
		_, err = r.mc.MMU.Translate(kind, vAddr)
	}

	if err != nil {
		r.report.Faults++
	}
}

func (r *syntheticRun) pick() (vm.AccessKind, uint32) {
	kinds := []vm.AccessKind{vm.AccessLoad, vm.AccessStore}
	offset := uint32(r.rng.Intn(vm.PageSize/4)) * 4

	switch n := r.rng.Intn(32); {
	case n < 2:
		return vm.AccessLoad, kernelBase + uint32(r.rng.Intn(1<<20))*4
	case n < 4:
		vpn := uint32(r.rng.Intn(8 * r.PagesPerSpace))
		return kinds[r.rng.Intn(2)], userBase + vpn*vm.PageSize + offset
	}

	pages := r.pages[r.asid]
	page := pages[r.rng.Intn(len(pages))]

	if page.perm.Has(vm.PermX) && r.rng.Intn(2) == 0 {
		return vm.AccessFetch, page.vAddr + offset
	}

	return kinds[r.rng.Intn(2)], page.vAddr + offset
}

func (r *syntheticRun) contextSwitch() error {
	r.asid = vm.ASID(r.rng.Intn(r.NumSpaces) + 1)
	r.report.Switches++

	return r.mc.Switch(r.asid)
}

func (r *syntheticRun) fence() {
	r.report.Fences++

	pages := r.pages[r.asid]

	switch r.rng.Intn(3) {
	case 0:
		r.mc.MMU.SFenceVMA(0, 0, 0, 0)
	case 1:
		r.mc.MMU.SFenceVMA(0, 0, 1, uint32(r.asid))
	default:
		page := pages[r.rng.Intn(len(pages))]
		r.mc.MMU.SFenceVMA(1, page.vAddr, 0, 0)
	}
}

func (r *syntheticRun) finish() SyntheticReport {
	r.mc.lock()
	defer r.mc.unlock()

	r.report.Walks = r.mc.MMU.NumWalks()
	r.report.TLB = r.mc.MMU.TLB().Stats()

	return r.report
}
