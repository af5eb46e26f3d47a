// Package cpu implements the 6502 register file and instruction execution:
// fetch-decode-execute, full addressing-mode coverage, flag semantics,
// stack discipline and the software BRK/RTI interrupt path. Cycle-accurate
// timing, decimal-mode arithmetic and undocumented opcodes are not modeled.
package cpu

import (
	"context"
	"fmt"

	"github.com/gamerjamer43/mbox16/memory"
	"github.com/gamerjamer43/mbox16/opcodes"
)

// Status register bit assignments: N V - B D I Z C. Bit 5 (P_S1) is the
// always-set "unused" bit; bit 4 (P_BREAK) only has meaning on the stack.
const (
	P_NEGATIVE  = uint8(0x80)
	P_OVERFLOW  = uint8(0x40)
	P_S1        = uint8(0x20)
	P_BREAK     = uint8(0x10)
	P_DECIMAL   = uint8(0x08)
	P_INTERRUPT = uint8(0x04)
	P_ZERO      = uint8(0x02)
	P_CARRY     = uint8(0x01)
)

// Reset and BRK vectors.
const (
	ResetVector = uint16(0xFFFC)
	BRKVector   = uint16(0xFFFE)
)

// IllegalInstruction is returned by Step when the fetched opcode byte has
// no entry in the dispatch table. The CPU does not skip; the caller must
// decide how to proceed.
type IllegalInstruction struct {
	Opcode byte
	PC     uint16
}

func (e IllegalInstruction) Error() string {
	return fmt.Sprintf("illegal instruction $%.2X at PC $%.4X", e.Opcode, e.PC)
}

// Interrupted is returned by Run when cancellation was requested via the
// context.Context argument before the step budget was exhausted.
type Interrupted struct{}

func (Interrupted) Error() string { return "execution interrupted" }

// Chip is the 6502 register file plus the memory fabric it executes
// against.
type Chip struct {
	A, X, Y, SP uint8
	PC          uint16
	P           uint8

	mem *memory.Fabric
}

// ChipDef configures a new Chip.
type ChipDef struct {
	// Mem is the memory fabric this CPU reads and writes.
	Mem *memory.Fabric
}

// Init creates a new Chip wired to def.Mem and immediately resets it,
// loading PC from the reset vector.
func Init(def *ChipDef) *Chip {
	c := &Chip{mem: def.Mem}
	c.Reset()
	return c
}

// Mem returns the memory fabric this Chip executes against.
func (c *Chip) Mem() *memory.Fabric { return c.mem }

// Reset zeros A/X/Y, sets SP=$FD, P=$24 (the unused and interrupt-disable
// bits set), and loads PC from the little-endian word at the reset vector.
func (c *Chip) Reset() {
	c.A, c.X, c.Y = 0, 0, 0
	c.SP = 0xFD
	c.P = P_S1 | P_INTERRUPT
	c.PC = c.read16(ResetVector)
}

func (c *Chip) read16(addr uint16) uint16 {
	lo := c.mem.Read(addr)
	hi := c.mem.Read(addr + 1)
	return uint16(hi)<<8 | uint16(lo)
}

func (c *Chip) setFlag(flag uint8, cond bool) {
	if cond {
		c.P |= flag
	} else {
		c.P &^= flag
	}
}

func (c *Chip) getFlag(flag uint8) bool { return c.P&flag != 0 }

func (c *Chip) setNZ(v uint8) {
	c.setFlag(P_ZERO, v == 0)
	c.setFlag(P_NEGATIVE, v&0x80 != 0)
}

// --- stack discipline: $0100-$01FF ---

func (c *Chip) push(v uint8) {
	c.mem.Write(0x0100+uint16(c.SP), v)
	c.SP--
}

func (c *Chip) pull() uint8 {
	c.SP++
	return c.mem.Read(0x0100 + uint16(c.SP))
}

// --- addressing-mode evaluators ---

func (c *Chip) immediate() uint8 {
	v := c.mem.Read(c.PC)
	c.PC++
	return v
}

func (c *Chip) zeroPage() uint16 {
	addr := uint16(c.mem.Read(c.PC))
	c.PC++
	return addr
}

func (c *Chip) zeroPageX() uint16 {
	addr := uint16(c.mem.Read(c.PC) + c.X)
	c.PC++
	return addr
}

func (c *Chip) zeroPageY() uint16 {
	addr := uint16(c.mem.Read(c.PC) + c.Y)
	c.PC++
	return addr
}

func (c *Chip) absolute() uint16 {
	addr := c.read16(c.PC)
	c.PC += 2
	return addr
}

func (c *Chip) absoluteX() uint16 { return c.absolute() + uint16(c.X) }
func (c *Chip) absoluteY() uint16 { return c.absolute() + uint16(c.Y) }

// indirect emulates the 6502 page-wrap bug used by JMP (ind): if the low
// byte of the pointer is $FF, the high byte of the target is fetched from
// ptr & $FF00 rather than ptr+1.
func (c *Chip) indirect() uint16 {
	ptr := c.absolute()
	lo := c.mem.Read(ptr)
	var hiAddr uint16
	if ptr&0xFF == 0xFF {
		hiAddr = ptr & 0xFF00
	} else {
		hiAddr = ptr + 1
	}
	hi := c.mem.Read(hiAddr)
	return uint16(hi)<<8 | uint16(lo)
}

// indexedIndirect implements (zp,X): the pointer itself is zero-page
// wrapped before and after indexing by X.
func (c *Chip) indexedIndirect() uint16 {
	zp := uint16(c.mem.Read(c.PC) + c.X)
	c.PC++
	lo := c.mem.Read(zp)
	hi := c.mem.Read((zp + 1) & 0xFF)
	return uint16(hi)<<8 | uint16(lo)
}

// indirectIndexed implements (zp),Y: the zero-page pointer wraps, but the
// resulting 16-bit base is indexed by Y without further wrapping (and
// without page-crossing penalty tracking, since cycle timing is out of
// scope).
func (c *Chip) indirectIndexed() uint16 {
	zp := uint16(c.mem.Read(c.PC))
	c.PC++
	lo := c.mem.Read(zp)
	hi := c.mem.Read((zp + 1) & 0xFF)
	base := uint16(hi)<<8 | uint16(lo)
	return base + uint16(c.Y)
}

func (c *Chip) relative() uint16 {
	offset := int8(c.mem.Read(c.PC))
	c.PC++
	return uint16(int32(c.PC) + int32(offset))
}

// effectiveAddr dispatches to the evaluator for mode. IMM/ACC/IMPLIED have
// no effective address and must be handled by the caller before reaching
// here.
func (c *Chip) effectiveAddr(mode opcodes.Mode) uint16 {
	switch mode {
	case opcodes.ZP:
		return c.zeroPage()
	case opcodes.ZPX:
		return c.zeroPageX()
	case opcodes.ZPY:
		return c.zeroPageY()
	case opcodes.ABS:
		return c.absolute()
	case opcodes.ABSX:
		return c.absoluteX()
	case opcodes.ABSY:
		return c.absoluteY()
	case opcodes.INDX:
		return c.indexedIndirect()
	case opcodes.INDY:
		return c.indirectIndexed()
	case opcodes.IND:
		return c.indirect()
	}
	panic(fmt.Sprintf("cpu: %s has no effective address", mode))
}

// loadValue reads the operand for a read-only instruction: IMM returns the
// operand byte itself, every other mode dereferences its effective
// address.
func (c *Chip) loadValue(mode opcodes.Mode) uint8 {
	if mode == opcodes.IMM {
		return c.immediate()
	}
	return c.mem.Read(c.effectiveAddr(mode))
}

// --- arithmetic/logic core, shared between ADC and SBC ---

func (c *Chip) adcCore(value uint8) {
	carry := uint16(0)
	if c.getFlag(P_CARRY) {
		carry = 1
	}
	r := uint16(c.A) + uint16(value) + carry
	c.setFlag(P_CARRY, r > 0xFF)
	c.setFlag(P_ZERO, r&0xFF == 0)
	c.setFlag(P_NEGATIVE, r&0x80 != 0)
	overflow := (^(uint16(c.A) ^ uint16(value)) & (uint16(c.A) ^ r)) & 0x80
	c.setFlag(P_OVERFLOW, overflow != 0)
	c.A = uint8(r)
}

func (c *Chip) compare(reg, value uint8) {
	t := reg - value
	c.setFlag(P_CARRY, reg >= value)
	c.setFlag(P_ZERO, t == 0)
	c.setFlag(P_NEGATIVE, t&0x80 != 0)
}

func (c *Chip) shiftLeft(v uint8) uint8 {
	carry := v&0x80 != 0
	v <<= 1
	c.setFlag(P_CARRY, carry)
	c.setNZ(v)
	return v
}

func (c *Chip) shiftRight(v uint8) uint8 {
	carry := v&0x01 != 0
	v >>= 1
	c.setFlag(P_CARRY, carry)
	c.setNZ(v)
	return v
}

func (c *Chip) rotateLeft(v uint8) uint8 {
	carryIn := uint8(0)
	if c.getFlag(P_CARRY) {
		carryIn = 1
	}
	carryOut := v&0x80 != 0
	v = (v << 1) | carryIn
	c.setFlag(P_CARRY, carryOut)
	c.setNZ(v)
	return v
}

func (c *Chip) rotateRight(v uint8) uint8 {
	carryIn := uint8(0)
	if c.getFlag(P_CARRY) {
		carryIn = 1 << 7
	}
	carryOut := v&0x01 != 0
	v = carryIn | (v >> 1)
	c.setFlag(P_CARRY, carryOut)
	c.setNZ(v)
	return v
}

// --- dispatch table: built at init() from the opcode matrix ---

type handler func(c *Chip, mode opcodes.Mode)

var dispatch [256]func(*Chip)

func init() {
	for mnemonic, h := range mnemonicHandlers {
		for _, e := range opcodes.Entries() {
			if e.Mnemonic != mnemonic {
				continue
			}
			mode := e.Mode
			hh := h
			dispatch[e.Opcode] = func(c *Chip) { hh(c, mode) }
		}
	}
}

var mnemonicHandlers = map[string]handler{
	"LDA": func(c *Chip, m opcodes.Mode) { c.A = c.loadValue(m); c.setNZ(c.A) },
	"LDX": func(c *Chip, m opcodes.Mode) { c.X = c.loadValue(m); c.setNZ(c.X) },
	"LDY": func(c *Chip, m opcodes.Mode) { c.Y = c.loadValue(m); c.setNZ(c.Y) },

	"STA": func(c *Chip, m opcodes.Mode) { c.mem.Write(c.effectiveAddr(m), c.A) },
	"STX": func(c *Chip, m opcodes.Mode) { c.mem.Write(c.effectiveAddr(m), c.X) },
	"STY": func(c *Chip, m opcodes.Mode) { c.mem.Write(c.effectiveAddr(m), c.Y) },

	"TAX": func(c *Chip, m opcodes.Mode) { c.X = c.A; c.setNZ(c.X) },
	"TAY": func(c *Chip, m opcodes.Mode) { c.Y = c.A; c.setNZ(c.Y) },
	"TXA": func(c *Chip, m opcodes.Mode) { c.A = c.X; c.setNZ(c.A) },
	"TYA": func(c *Chip, m opcodes.Mode) { c.A = c.Y; c.setNZ(c.A) },
	"TSX": func(c *Chip, m opcodes.Mode) { c.X = c.SP; c.setNZ(c.X) },
	"TXS": func(c *Chip, m opcodes.Mode) { c.SP = c.X },

	"PHA": func(c *Chip, m opcodes.Mode) { c.push(c.A) },
	"PHP": func(c *Chip, m opcodes.Mode) { c.push(c.P | P_BREAK | P_S1) },
	"PLA": func(c *Chip, m opcodes.Mode) { c.A = c.pull(); c.setNZ(c.A) },
	"PLP": func(c *Chip, m opcodes.Mode) { c.P = (c.pull() &^ P_BREAK) | P_S1 },

	"ADC": func(c *Chip, m opcodes.Mode) { c.adcCore(c.loadValue(m)) },
	"SBC": func(c *Chip, m opcodes.Mode) { c.adcCore(c.loadValue(m) ^ 0xFF) },

	"AND": func(c *Chip, m opcodes.Mode) { c.A &= c.loadValue(m); c.setNZ(c.A) },
	"ORA": func(c *Chip, m opcodes.Mode) { c.A |= c.loadValue(m); c.setNZ(c.A) },
	"EOR": func(c *Chip, m opcodes.Mode) { c.A ^= c.loadValue(m); c.setNZ(c.A) },

	"BIT": func(c *Chip, m opcodes.Mode) {
		v := c.loadValue(m)
		c.setFlag(P_ZERO, c.A&v == 0)
		c.setFlag(P_NEGATIVE, v&0x80 != 0)
		c.setFlag(P_OVERFLOW, v&0x40 != 0)
	},

	"CMP": func(c *Chip, m opcodes.Mode) { c.compare(c.A, c.loadValue(m)) },
	"CPX": func(c *Chip, m opcodes.Mode) { c.compare(c.X, c.loadValue(m)) },
	"CPY": func(c *Chip, m opcodes.Mode) { c.compare(c.Y, c.loadValue(m)) },

	"INC": func(c *Chip, m opcodes.Mode) {
		addr := c.effectiveAddr(m)
		v := c.mem.Read(addr) + 1
		c.mem.Write(addr, v)
		c.setNZ(v)
	},
	"DEC": func(c *Chip, m opcodes.Mode) {
		addr := c.effectiveAddr(m)
		v := c.mem.Read(addr) - 1
		c.mem.Write(addr, v)
		c.setNZ(v)
	},
	"INX": func(c *Chip, m opcodes.Mode) { c.X++; c.setNZ(c.X) },
	"INY": func(c *Chip, m opcodes.Mode) { c.Y++; c.setNZ(c.Y) },
	"DEX": func(c *Chip, m opcodes.Mode) { c.X--; c.setNZ(c.X) },
	"DEY": func(c *Chip, m opcodes.Mode) { c.Y--; c.setNZ(c.Y) },

	"ASL": func(c *Chip, m opcodes.Mode) {
		if m == opcodes.ACC {
			c.A = c.shiftLeft(c.A)
			return
		}
		addr := c.effectiveAddr(m)
		c.mem.Write(addr, c.shiftLeft(c.mem.Read(addr)))
	},
	"LSR": func(c *Chip, m opcodes.Mode) {
		if m == opcodes.ACC {
			c.A = c.shiftRight(c.A)
			return
		}
		addr := c.effectiveAddr(m)
		c.mem.Write(addr, c.shiftRight(c.mem.Read(addr)))
	},
	"ROL": func(c *Chip, m opcodes.Mode) {
		if m == opcodes.ACC {
			c.A = c.rotateLeft(c.A)
			return
		}
		addr := c.effectiveAddr(m)
		c.mem.Write(addr, c.rotateLeft(c.mem.Read(addr)))
	},
	"ROR": func(c *Chip, m opcodes.Mode) {
		if m == opcodes.ACC {
			c.A = c.rotateRight(c.A)
			return
		}
		addr := c.effectiveAddr(m)
		c.mem.Write(addr, c.rotateRight(c.mem.Read(addr)))
	},

	"JMP": func(c *Chip, m opcodes.Mode) { c.PC = c.effectiveAddr(m) },
	"JSR": func(c *Chip, m opcodes.Mode) {
		addr := c.absolute()
		ret := c.PC - 1
		c.push(uint8(ret >> 8))
		c.push(uint8(ret))
		c.PC = addr
	},
	"RTS": func(c *Chip, m opcodes.Mode) {
		lo := c.pull()
		hi := c.pull()
		c.PC = (uint16(hi)<<8 | uint16(lo)) + 1
	},
	"RTI": func(c *Chip, m opcodes.Mode) {
		c.P = (c.pull() &^ P_BREAK) | P_S1
		lo := c.pull()
		hi := c.pull()
		c.PC = uint16(hi)<<8 | uint16(lo)
	},
	"BRK": func(c *Chip, m opcodes.Mode) {
		c.PC++
		c.push(uint8(c.PC >> 8))
		c.push(uint8(c.PC))
		c.push(c.P | P_BREAK | P_S1)
		c.setFlag(P_INTERRUPT, true)
		c.PC = c.read16(BRKVector)
	},
	"NOP": func(c *Chip, m opcodes.Mode) {},

	"CLC": func(c *Chip, m opcodes.Mode) { c.setFlag(P_CARRY, false) },
	"SEC": func(c *Chip, m opcodes.Mode) { c.setFlag(P_CARRY, true) },
	"CLI": func(c *Chip, m opcodes.Mode) { c.setFlag(P_INTERRUPT, false) },
	"SEI": func(c *Chip, m opcodes.Mode) { c.setFlag(P_INTERRUPT, true) },
	"CLV": func(c *Chip, m opcodes.Mode) { c.setFlag(P_OVERFLOW, false) },
	"CLD": func(c *Chip, m opcodes.Mode) { c.setFlag(P_DECIMAL, false) },
	"SED": func(c *Chip, m opcodes.Mode) { c.setFlag(P_DECIMAL, true) },

	"BCC": func(c *Chip, m opcodes.Mode) { c.branch(!c.getFlag(P_CARRY)) },
	"BCS": func(c *Chip, m opcodes.Mode) { c.branch(c.getFlag(P_CARRY)) },
	"BEQ": func(c *Chip, m opcodes.Mode) { c.branch(c.getFlag(P_ZERO)) },
	"BMI": func(c *Chip, m opcodes.Mode) { c.branch(c.getFlag(P_NEGATIVE)) },
	"BNE": func(c *Chip, m opcodes.Mode) { c.branch(!c.getFlag(P_ZERO)) },
	"BPL": func(c *Chip, m opcodes.Mode) { c.branch(!c.getFlag(P_NEGATIVE)) },
	"BVC": func(c *Chip, m opcodes.Mode) { c.branch(!c.getFlag(P_OVERFLOW)) },
	"BVS": func(c *Chip, m opcodes.Mode) { c.branch(c.getFlag(P_OVERFLOW)) },
}

// branch always consumes the relative operand byte; PC only moves to the
// target when cond is true, otherwise it's already positioned past the
// operand.
func (c *Chip) branch(cond bool) {
	target := c.relative()
	if cond {
		c.PC = target
	}
}

// Step fetches one opcode at PC, advances PC by one, evaluates addressing
// and dispatches to the handler. It returns IllegalInstruction if the
// opcode has no dispatch entry; it never silently no-ops an unmapped byte.
func (c *Chip) Step() error {
	pcAtFetch := c.PC
	op := c.mem.Read(c.PC)
	c.PC++
	h := dispatch[op]
	if h == nil {
		return IllegalInstruction{Opcode: op, PC: pcAtFetch}
	}
	h(c)
	return nil
}

// Run calls Step up to n times, stopping early (without error) once PC
// points at a BRK opcode ($00) so the caller can decide how to handle the
// halt (typically by stepping once more explicitly to run BRK's interrupt
// vectoring). Run also stops, returning Interrupted, if ctx is canceled
// between instructions.
func (c *Chip) Run(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return Interrupted{}
			default:
			}
		}
		if c.mem.Read(c.PC) == 0x00 {
			return nil
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
	return nil
}
