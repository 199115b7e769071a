package workload

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/rvtlb/mem/vm"
	"github.com/sarchlab/rvtlb/mem/vm/mmu"
)

// ErrSyntax is wrapped by every script parse error.
var ErrSyntax = errors.New("syntax error")

// An Outcome is what one access command produced.
type Outcome struct {
	Line   int
	Access vm.AccessKind
	VAddr  uint32
	PAddr  uint64

	// Hit is set when the TLB served the access without a walk.
	Hit   bool
	Fault *mmu.PageFault

	// Expect is the expectation written in the script, if any, and Mismatch
	// tells whether the access did not meet it.
	Expect   string
	Mismatch bool
}

func (o Outcome) String() string {
	result := fmt.Sprintf("0x%x", o.PAddr)
	if o.Fault != nil {
		result = "fault(" + o.Fault.Cause.String() + ")"
	}

	how := "miss"
	if o.Hit {
		how = "hit"
	}

	s := fmt.Sprintf("%d: %s 0x%08x -> %s [%s]",
		o.Line, o.Access, o.VAddr, result, how)
	if o.Mismatch {
		s += " expected " + o.Expect
	}

	return s
}

type command interface {
	exec(mc *Machine) (*Outcome, error)
}

// A Script is a parsed list of commands.
//
//	# comment
//	map <asid> <vaddr> <paddr> <4K|4M> <perm> [global]
//	unmap <asid> <vaddr>
//	satp <asid>|bare
//	priv U|S|M
//	status [sum] [mxr]
//	access load|store|fetch <vaddr> [-> <paddr>|fault]
//	sfence [<vaddr>|*] [<asid>|*]
type Script struct {
	commands []command
	lines    []int
}

// Len returns the number of commands.
func (s *Script) Len() int {
	return len(s.commands)
}

// NumAccesses returns the number of access commands.
func (s *Script) NumAccesses() int {
	n := 0

	for _, c := range s.commands {
		if _, ok := c.(*accessCmd); ok {
			n++
		}
	}

	return n
}

// Run executes the script against mc. It stops at the first command that
// cannot be carried out. Page faults are outcomes, not errors.
func (s *Script) Run(ctx context.Context, mc *Machine) ([]Outcome, error) {
	var outcomes []Outcome

	for i, c := range s.commands {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		mc.lock()
		o, err := c.exec(mc)
		mc.unlock()

		if err != nil {
			return outcomes, fmt.Errorf("line %d: %w", s.lines[i], err)
		}

		if o != nil {
			o.Line = s.lines[i]
			outcomes = append(outcomes, *o)
		}
	}

	return outcomes, nil
}

// ParseScript reads a script.
func ParseScript(r io.Reader) (*Script, error) {
	s := &Script{}
	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++

		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		c, err := parseCommand(fields)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		s.commands = append(s.commands, c)
		s.lines = append(s.lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

func parseCommand(fields []string) (command, error) {
	args := fields[1:]

	switch strings.ToLower(fields[0]) {
	case "map":
		return parseMap(args)
	case "unmap":
		return parseUnmap(args)
	case "satp":
		return parseSATP(args)
	case "priv":
		return parsePriv(args)
	case "status":
		return parseStatus(args)
	case "access":
		return parseAccess(args)
	case "sfence":
		return parseSFence(args)
	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrSyntax, fields[0])
	}
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrSyntax, s)
	}

	return uint32(v), nil
}

func parsePAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil || v > vm.MaxPAddr {
		return 0, fmt.Errorf("%w: bad physical address %q", ErrSyntax, s)
	}

	return v, nil
}

func parseASID(s string) (vm.ASID, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil || vm.ASID(v) > vm.MaxASID {
		return 0, fmt.Errorf("%w: bad asid %q", ErrSyntax, s)
	}

	return vm.ASID(v), nil
}

func parseLevel(s string) (vm.Level, error) {
	switch strings.ToUpper(s) {
	case "4K":
		return vm.LevelPage, nil
	case "4M":
		return vm.LevelMegapage, nil
	default:
		return 0, fmt.Errorf("%w: bad page size %q", ErrSyntax, s)
	}
}

func wantArgs(args []string, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		return fmt.Errorf("%w: got %d arguments", ErrSyntax, len(args))
	}

	return nil
}

type mapCmd struct {
	asid   vm.ASID
	vAddr  uint32
	pAddr  uint64
	level  vm.Level
	perm   vm.Perm
	global bool
}

func parseMap(args []string) (command, error) {
	if err := wantArgs(args, 5, 6); err != nil {
		return nil, err
	}

	c := &mapCmd{}

	var err error
	if c.asid, err = parseASID(args[0]); err != nil {
		return nil, err
	}

	if c.vAddr, err = parseUint32(args[1]); err != nil {
		return nil, err
	}

	if c.pAddr, err = parsePAddr(args[2]); err != nil {
		return nil, err
	}

	if c.level, err = parseLevel(args[3]); err != nil {
		return nil, err
	}

	if c.perm, err = vm.ParsePerm(args[4]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyntax, err)
	}

	if len(args) == 6 {
		if args[5] != "global" {
			return nil, fmt.Errorf("%w: unexpected %q", ErrSyntax, args[5])
		}

		c.global = true
	}

	return c, nil
}

func (c *mapCmd) exec(mc *Machine) (*Outcome, error) {
	pt, err := mc.Space(c.asid)
	if err != nil {
		return nil, err
	}

	return nil, pt.Map(c.vAddr, c.pAddr, c.level, c.perm, c.global)
}

type unmapCmd struct {
	asid  vm.ASID
	vAddr uint32
}

func parseUnmap(args []string) (command, error) {
	if err := wantArgs(args, 2, 2); err != nil {
		return nil, err
	}

	asid, err := parseASID(args[0])
	if err != nil {
		return nil, err
	}

	vAddr, err := parseUint32(args[1])
	if err != nil {
		return nil, err
	}

	return &unmapCmd{asid: asid, vAddr: vAddr}, nil
}

func (c *unmapCmd) exec(mc *Machine) (*Outcome, error) {
	pt, err := mc.Space(c.asid)
	if err != nil {
		return nil, err
	}

	return nil, pt.Unmap(c.vAddr)
}

type satpCmd struct {
	bare bool
	asid vm.ASID
}

func parseSATP(args []string) (command, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}

	if args[0] == "bare" {
		return &satpCmd{bare: true}, nil
	}

	asid, err := parseASID(args[0])
	if err != nil {
		return nil, err
	}

	return &satpCmd{asid: asid}, nil
}

func (c *satpCmd) exec(mc *Machine) (*Outcome, error) {
	if c.bare {
		mc.MMU.SetSATP(0)
		return nil, nil
	}

	return nil, mc.Switch(c.asid)
}

type privCmd struct {
	mode vm.PrivMode
}

func parsePriv(args []string) (command, error) {
	if err := wantArgs(args, 1, 1); err != nil {
		return nil, err
	}

	switch strings.ToUpper(args[0]) {
	case "U":
		return &privCmd{mode: vm.PrivUser}, nil
	case "S":
		return &privCmd{mode: vm.PrivSupervisor}, nil
	case "M":
		return &privCmd{mode: vm.PrivMachine}, nil
	default:
		return nil, fmt.Errorf("%w: bad privilege %q", ErrSyntax, args[0])
	}
}

func (c *privCmd) exec(mc *Machine) (*Outcome, error) {
	mc.MMU.SetPrivilege(c.mode)
	return nil, nil
}

type statusCmd struct {
	sstatus uint32
}

func parseStatus(args []string) (command, error) {
	if err := wantArgs(args, 0, 2); err != nil {
		return nil, err
	}

	c := &statusCmd{}

	for _, a := range args {
		switch strings.ToLower(a) {
		case "sum":
			c.sstatus |= mmu.SStatusSUM
		case "mxr":
			c.sstatus |= mmu.SStatusMXR
		default:
			return nil, fmt.Errorf("%w: bad status flag %q", ErrSyntax, a)
		}
	}

	return c, nil
}

func (c *statusCmd) exec(mc *Machine) (*Outcome, error) {
	mc.MMU.SetStatus(c.sstatus)
	return nil, nil
}

type accessCmd struct {
	access vm.AccessKind
	vAddr  uint32
	expect string
}

func parseAccessKind(s string) (vm.AccessKind, error) {
	switch strings.ToLower(s) {
	case "load":
		return vm.AccessLoad, nil
	case "store":
		return vm.AccessStore, nil
	case "fetch":
		return vm.AccessFetch, nil
	default:
		return 0, fmt.Errorf("%w: bad access %q", ErrSyntax, s)
	}
}

func parseAccess(args []string) (command, error) {
	if len(args) != 2 && len(args) != 4 {
		return nil, fmt.Errorf("%w: got %d arguments", ErrSyntax, len(args))
	}

	c := &accessCmd{}

	var err error
	if c.access, err = parseAccessKind(args[0]); err != nil {
		return nil, err
	}

	if c.vAddr, err = parseUint32(args[1]); err != nil {
		return nil, err
	}

	if len(args) == 4 {
		if args[2] != "->" {
			return nil, fmt.Errorf("%w: expected -> before %q",
				ErrSyntax, args[3])
		}

		if args[3] != "fault" {
			if _, err = parsePAddr(args[3]); err != nil {
				return nil, err
			}
		}

		c.expect = args[3]
	}

	return c, nil
}

func (c *accessCmd) exec(mc *Machine) (*Outcome, error) {
	class := c.access.Class()
	before := classHits(mc, class)

	o := &Outcome{
		Access: c.access,
		VAddr:  c.vAddr,
		Expect: c.expect,
	}

	pAddr, err := mc.MMU.Translate(c.access, c.vAddr)
	if err != nil {
		var fault *mmu.PageFault
		if !errors.As(err, &fault) {
			return nil, err
		}

		o.Fault = fault
	}

	o.PAddr = pAddr
	o.Hit = classHits(mc, class) > before
	o.Mismatch = !c.met(o)

	return o, nil
}

func (c *accessCmd) met(o *Outcome) bool {
	switch c.expect {
	case "":
		return true
	case "fault":
		return o.Fault != nil
	default:
		want, _ := parsePAddr(c.expect)
		return o.Fault == nil && o.PAddr == want
	}
}

func classHits(mc *Machine, class vm.AccessClass) uint64 {
	stats := mc.MMU.TLB().Stats()
	if class == vm.ClassInstruction {
		return stats.Instruction.Hits
	}

	return stats.Data.Hits
}

type sfenceCmd struct {
	rs1, rs2       uint8
	rs1Val, rs2Val uint32
}

func parseSFence(args []string) (command, error) {
	if err := wantArgs(args, 0, 2); err != nil {
		return nil, err
	}

	c := &sfenceCmd{}

	if len(args) > 0 && args[0] != "*" {
		v, err := parseUint32(args[0])
		if err != nil {
			return nil, err
		}

		c.rs1, c.rs1Val = 1, v
	}

	if len(args) > 1 && args[1] != "*" {
		asid, err := parseASID(args[1])
		if err != nil {
			return nil, err
		}

		c.rs2, c.rs2Val = 2, uint32(asid)
	}

	return c, nil
}

func (c *sfenceCmd) exec(mc *Machine) (*Outcome, error) {
	mc.MMU.SFenceVMA(c.rs1, c.rs1Val, c.rs2, c.rs2Val)
	return nil, nil
}
