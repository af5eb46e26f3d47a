package cpu

import (
	"context"
	"testing"

	"github.com/davecgh/go-spew/spew"

	"github.com/gamerjamer43/mbox16/memory"
)

// setup returns a freshly reset Chip over an empty fabric with the reset
// vector pointed at origin.
func setup(t *testing.T, origin uint16) (*Chip, *memory.Fabric) {
	t.Helper()
	m := memory.New()
	m.LoadROM([]byte{uint8(origin), uint8(origin >> 8)}, ResetVector)
	c := Init(&ChipDef{Mem: m})
	return c, m
}

// load places bytes at addr through LoadROM, so programs placed in the
// write-protected ROM windows (e.g. $A000) actually land in memory.
func load(m *memory.Fabric, addr uint16, bytes ...byte) {
	m.LoadROM(bytes, addr)
}

func mustStep(t *testing.T, c *Chip) {
	t.Helper()
	if err := c.Step(); err != nil {
		t.Fatalf("Step: %v\nstate: %s", err, spew.Sdump(c))
	}
}

func TestLDAImmediate(t *testing.T) {
	c, m := setup(t, 0x1000)
	load(m, 0x1000, 0xA9, 0x42)
	mustStep(t, c)
	if c.A != 0x42 {
		t.Errorf("A = $%.2X, want $42", c.A)
	}
	if c.getFlag(P_ZERO) || c.getFlag(P_NEGATIVE) {
		t.Errorf("unexpected flags after LDA #$42: P=$%.2X", c.P)
	}
	if c.PC != 0x1002 {
		t.Errorf("PC = $%.4X, want $1002", c.PC)
	}
}

func TestLDAFlags(t *testing.T) {
	tests := []struct {
		name     string
		value    byte
		wantZero bool
		wantNeg  bool
	}{
		{"zero", 0x00, true, false},
		{"negative", 0x80, false, true},
		{"positive", 0x01, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, m := setup(t, 0x1000)
			load(m, 0x1000, 0xA9, tc.value)
			mustStep(t, c)
			if got := c.getFlag(P_ZERO); got != tc.wantZero {
				t.Errorf("Z = %v, want %v", got, tc.wantZero)
			}
			if got := c.getFlag(P_NEGATIVE); got != tc.wantNeg {
				t.Errorf("N = %v, want %v", got, tc.wantNeg)
			}
		})
	}
}

// PC advance per addressing mode when no branch/jump occurs.
func TestPCAdvanceByMode(t *testing.T) {
	tests := []struct {
		name  string
		bytes []byte
		want  uint16
	}{
		{"implied CLC", []byte{0x18}, 1},
		{"immediate LDA", []byte{0xA9, 0x01}, 2},
		{"zero page LDA", []byte{0xA5, 0x10}, 2},
		{"zero page,X LDA", []byte{0xB5, 0x10}, 2},
		{"absolute LDA", []byte{0xAD, 0x00, 0x20}, 3},
		{"absolute,X LDA", []byte{0xBD, 0x00, 0x20}, 3},
		{"indexed indirect LDA", []byte{0xA1, 0x10}, 2},
		{"indirect indexed LDA", []byte{0xB1, 0x10}, 2},
		{"accumulator ASL", []byte{0x0A}, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, m := setup(t, 0x1000)
			load(m, 0x1000, tc.bytes...)
			mustStep(t, c)
			if got := c.PC - 0x1000; got != tc.want {
				t.Errorf("PC advanced %d bytes, want %d", got, tc.want)
			}
		})
	}
}

func TestIndirectJMPPageWrapBug(t *testing.T) {
	c, m := setup(t, 0x1000)
	// JMP ($20FF) - pointer low byte is $FF so the high byte of the
	// target must be fetched from $2000, not $2100.
	load(m, 0x1000, 0x6C, 0xFF, 0x20)
	m.Write(0x20FF, 0x34)
	m.Write(0x2000, 0x12) // would be ignored if the bug weren't reproduced
	m.Write(0x2100, 0x99) // must NOT be used
	mustStep(t, c)
	if c.PC != 0x1234 {
		t.Errorf("PC = $%.4X, want $1234 (page-wrap bug)", c.PC)
	}
}

func TestIndexedIndirectZeroPageWrap(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.X = 0xFF
	// LDA ($80,X) with X=$FF wraps: zp = ($80+$FF)&$FF = $7F
	load(m, 0x1000, 0xA1, 0x80)
	m.Write(0x007F, 0x00)
	m.Write(0x0080, 0x30)
	m.Write(0x3000, 0x77)
	mustStep(t, c)
	if c.A != 0x77 {
		t.Errorf("A = $%.2X, want $77", c.A)
	}
}

func TestIndirectIndexedNoWrapOnBase(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.Y = 0x10
	load(m, 0x1000, 0xB1, 0x80)
	m.Write(0x0080, 0xF0)
	m.Write(0x0081, 0x2F)
	m.Write(0x3000, 0x55) // ($2FF0 + $10) = $3000
	mustStep(t, c)
	if c.A != 0x55 {
		t.Errorf("A = $%.2X, want $55", c.A)
	}
}

func TestADCFlags(t *testing.T) {
	// CLC ; LDA #$7F ; ADC #$01 -> A=$80, N=1, V=1, C=0, Z=0
	c, m := setup(t, 0xA000)
	load(m, 0xA000, 0x18, 0xA9, 0x7F, 0x69, 0x01)
	for i := 0; i < 3; i++ {
		mustStep(t, c)
	}
	if c.A != 0x80 {
		t.Fatalf("A = $%.2X, want $80", c.A)
	}
	if !c.getFlag(P_NEGATIVE) || !c.getFlag(P_OVERFLOW) || c.getFlag(P_CARRY) || c.getFlag(P_ZERO) {
		t.Errorf("flags P=$%.2X don't match N=1 V=1 C=0 Z=0", c.P)
	}
}

func TestSBCFlags(t *testing.T) {
	// SEC ; LDA #$50 ; SBC #$F0 -> A=$60, C=0, V=1
	c, m := setup(t, 0xA000)
	load(m, 0xA000, 0x38, 0xA9, 0x50, 0xE9, 0xF0)
	for i := 0; i < 3; i++ {
		mustStep(t, c)
	}
	if c.A != 0x60 {
		t.Fatalf("A = $%.2X, want $60", c.A)
	}
	if c.getFlag(P_CARRY) || !c.getFlag(P_OVERFLOW) {
		t.Errorf("flags P=$%.2X don't match C=0 V=1", c.P)
	}
}

// ADC then SBC returns A to its original value when SBC runs with the
// complementary carry (SBC's carry is an inverted borrow: ADC with C=0
// pairs with SBC with C=1, and ADC with C=1 with SBC with C=0).
func TestADCSBCRoundTrip(t *testing.T) {
	for a := 0; a < 256; a += 7 {
		for v := 0; v < 256; v += 11 {
			for _, carry := range []bool{false, true} {
				c, m := setup(t, 0x1000)
				c.A = uint8(a)
				c.setFlag(P_CARRY, carry)
				startC := carry
				load(m, 0x1000, 0x69, uint8(v)) // ADC #v
				mustStep(t, c)
				c.setFlag(P_CARRY, !startC)
				c.PC = 0x1000
				load(m, 0x1000, 0xE9, uint8(v)) // SBC #v
				mustStep(t, c)
				if c.A != uint8(a) {
					t.Fatalf("a=%d v=%d carry=%v: A=$%.2X after ADC/SBC round trip, want $%.2X", a, v, carry, c.A, a)
				}
			}
		}
	}
}

func TestCompare(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.A = 0x05
	load(m, 0x1000, 0xC9, 0x05) // CMP #$05
	mustStep(t, c)
	if !c.getFlag(P_CARRY) || !c.getFlag(P_ZERO) {
		t.Errorf("CMP equal case: P=$%.2X, want C=1 Z=1", c.P)
	}
}

func TestShiftsAndRotates(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.A = 0x81
	load(m, 0x1000, 0x0A) // ASL A
	mustStep(t, c)
	if c.A != 0x02 || !c.getFlag(P_CARRY) {
		t.Errorf("ASL A of $81: A=$%.2X C=%v, want $02 true", c.A, c.getFlag(P_CARRY))
	}

	c2, m2 := setup(t, 0x1000)
	c2.A = 0x01
	load(m2, 0x1000, 0x4A) // LSR A
	mustStep(t, c2)
	if c2.A != 0x00 || !c2.getFlag(P_CARRY) || !c2.getFlag(P_ZERO) {
		t.Errorf("LSR A of $01: A=$%.2X C=%v Z=%v", c2.A, c2.getFlag(P_CARRY), c2.getFlag(P_ZERO))
	}

	c3, m3 := setup(t, 0x1000)
	c3.A = 0x80
	c3.setFlag(P_CARRY, true)
	load(m3, 0x1000, 0x2A) // ROL A
	mustStep(t, c3)
	if c3.A != 0x01 || !c3.getFlag(P_CARRY) {
		t.Errorf("ROL A of $80 with C=1: A=$%.2X C=%v, want $01 true", c3.A, c3.getFlag(P_CARRY))
	}
}

func TestBIT(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.A = 0x0F
	m.Write(0x0010, 0xC0) // bits 7,6 set, rest clear
	load(m, 0x1000, 0x24, 0x10) // BIT $10
	mustStep(t, c)
	if !c.getFlag(P_NEGATIVE) || !c.getFlag(P_OVERFLOW) {
		t.Errorf("BIT: N/V not set from operand bits 7/6, P=$%.2X", c.P)
	}
	if !c.getFlag(P_ZERO) {
		t.Errorf("BIT: Z clear but A&M == 0")
	}
}

func TestStackPushPullRoundTrip(t *testing.T) {
	c, _ := setup(t, 0x1000)
	startSP := c.SP
	c.push(0x42)
	if got := c.pull(); got != 0x42 {
		t.Errorf("pull() = $%.2X, want $42", got)
	}
	if c.SP != startSP {
		t.Errorf("SP = $%.2X after push/pull, want $%.2X", c.SP, startSP)
	}
}

func TestJSRRTS(t *testing.T) {
	c, m := setup(t, 0xA000)
	load(m, 0xA000, 0x20, 0x10, 0xA0) // JSR $A010
	load(m, 0xA010, 0x60)             // RTS
	startSP := c.SP
	mustStep(t, c) // JSR
	if c.PC != 0xA010 {
		t.Fatalf("PC after JSR = $%.4X, want $A010", c.PC)
	}
	mustStep(t, c) // RTS
	if c.PC != 0xA003 {
		t.Errorf("PC after RTS = $%.4X, want $A003 (instruction after JSR)", c.PC)
	}
	if c.SP != startSP {
		t.Errorf("SP = $%.2X after JSR/RTS, want $%.2X", c.SP, startSP)
	}
}

func TestBRKVectorsAndPushesStatus(t *testing.T) {
	c, m := setup(t, 0xA000)
	load(m, BRKVector, 0x00, 0xB0)
	load(m, 0xA000, 0x00, 0xEA) // BRK, then a padding NOP byte
	mustStep(t, c)
	if c.PC != 0xB000 {
		t.Fatalf("PC after BRK = $%.4X, want $B000", c.PC)
	}
	if !c.getFlag(P_INTERRUPT) {
		t.Errorf("I flag not set after BRK")
	}
	// Stack, top to bottom: P (with B set), PC lo, PC hi.
	pFlags := c.mem.Read(0x0100 + uint16(c.SP) + 1)
	if pFlags&P_BREAK == 0 {
		t.Errorf("pushed P=$%.2X does not have B set", pFlags)
	}
}

func TestBranchTakenAndNotTaken(t *testing.T) {
	c, m := setup(t, 0x1000)
	c.setFlag(P_ZERO, true)
	load(m, 0x1000, 0xF0, 0x05) // BEQ +5
	mustStep(t, c)
	if c.PC != 0x1007 {
		t.Errorf("BEQ taken: PC=$%.4X, want $1007", c.PC)
	}

	c2, m2 := setup(t, 0x1000)
	c2.setFlag(P_ZERO, false)
	load(m2, 0x1000, 0xF0, 0x05) // BEQ +5, not taken
	mustStep(t, c2)
	if c2.PC != 0x1002 {
		t.Errorf("BEQ not taken: PC=$%.4X, want $1002", c2.PC)
	}
}

func TestBranchNegativeDisplacement(t *testing.T) {
	c, m := setup(t, 0x1010)
	c.setFlag(P_CARRY, true)
	load(m, 0x1010, 0xB0, 0xFE) // BCS -2 -> infinite loop target is itself
	mustStep(t, c)
	if c.PC != 0x1010 {
		t.Errorf("BCS -2: PC=$%.4X, want $1010", c.PC)
	}
}

func TestIllegalInstructionDoesNotSkip(t *testing.T) {
	c, m := setup(t, 0x1000)
	load(m, 0x1000, 0x02) // not a legal opcode in this matrix
	err := c.Step()
	ill, ok := err.(IllegalInstruction)
	if !ok {
		t.Fatalf("Step() err = %v (%T), want IllegalInstruction", err, err)
	}
	if ill.Opcode != 0x02 || ill.PC != 0x1000 {
		t.Errorf("IllegalInstruction = %+v, want {Opcode:2 PC:0x1000}", ill)
	}
}

func TestRunStopsBeforeBRK(t *testing.T) {
	c, m := setup(t, 0xA000)
	load(m, 0xA000, 0xA9, 0x01, 0xE8, 0x00) // LDA #$1 ; INX ; BRK
	if err := c.Run(context.Background(), 10); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.PC != 0xA003 {
		t.Errorf("PC after Run = $%.4X, want $A003 (stopped at BRK without executing it)", c.PC)
	}
}

func TestRunHonorsContextCancellation(t *testing.T) {
	c, m := setup(t, 0xA000)
	load(m, 0xA000, 0xEA) // NOP, repeats via fill-less loop below
	for i := uint16(1); i < 16; i++ {
		load(m, 0xA000+i, 0xEA)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Run(ctx, 10)
	if _, ok := err.(Interrupted); !ok {
		t.Fatalf("Run with canceled context: err = %v, want Interrupted", err)
	}
}

// LDX #$00 ; loop: INX ; CPX #$05 ; BNE loop ; BRK
func TestScenarioCountLoop(t *testing.T) {
	c, m := setup(t, 0xA000)
	load(m, 0xA000,
		0xA2, 0x00, // LDX #$00
		0xE8,       // loop: INX
		0xE0, 0x05, // CPX #$05
		0xD0, 0xFB, // BNE loop
		0x00, // BRK
	)
	if err := c.Run(context.Background(), 100); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if c.X != 0x05 {
		t.Errorf("X = $%.2X, want $05", c.X)
	}
	if !c.getFlag(P_ZERO) || !c.getFlag(P_CARRY) {
		t.Errorf("flags P=$%.2X, want Z=1 C=1", c.P)
	}
}
