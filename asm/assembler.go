package asm

import (
	"strings"

	"github.com/gamerjamer43/mbox16/opcodes"
)

// DefaultOrigin is where assembly begins absent a leading .org.
const DefaultOrigin = uint16(0xA000)

// Assembler drives the two-pass assembly of one source text into a byte
// image. An Assembler is single-use: construct one per Assemble call.
type Assembler struct {
	Origin uint16
	Labels Labels

	pc      uint16
	entries []entry
}

// NewAssembler returns an Assembler starting at origin.
func NewAssembler(origin uint16) *Assembler {
	return &Assembler{Origin: origin, Labels: Labels{}}
}

// Assemble parses and assembles text in one call, starting at
// DefaultOrigin. It is the convenience wrapper most callers want.
func Assemble(text string) ([]byte, error) {
	a := NewAssembler(DefaultOrigin)
	if err := a.Pass1(strings.Split(text, "\n")); err != nil {
		return nil, err
	}
	return a.Pass2()
}

// Pass1 walks raw source lines, binding labels and computing each line's
// program-counter position so Pass2 can emit bytes without re-deriving
// sizes. A label line may carry a trailing instruction or directive on the
// same physical line ("loop: INX"); Pass1 splits that off and recurses on
// the tail at the same pc, exactly as the label's own address requires.
func (a *Assembler) Pass1(lines []string) error {
	a.pc = a.Origin
	for i, raw := range lines {
		lineNo := i + 1
		if err := a.pass1Line(lineNo, raw, raw); err != nil {
			return err
		}
	}
	return nil
}

func (a *Assembler) pass1Line(lineNo int, raw, text string) error {
	stripped := stripComment(text)
	if stripped == "" {
		return nil
	}

	if idx := strings.IndexByte(stripped, ':'); idx >= 0 {
		label := strings.TrimSpace(stripped[:idx])
		if label != "" && isIdentifier(label) {
			if _, bound := a.Labels[label]; bound {
				return SyntaxError{Line: lineNo, Text: raw, Reason: "label " + label + " already bound"}
			}
			a.Labels[label] = a.pc
			a.entries = append(a.entries, entry{lineNo: lineNo, raw: raw, parsed: Line{Kind: KindLabel, Label: label, Raw: raw}})
			rest := stripped[idx+1:]
			return a.pass1Line(lineNo, raw, rest)
		}
	}

	parsed, err := ParseLine(lineNo, stripped)
	if err != nil {
		return err
	}
	switch parsed.Kind {
	case KindEmpty:
		return nil
	case KindOrg:
		a.pc = parsed.Org
	case KindWord:
		a.pc += uint16(2 * len(parsed.Exprs))
	case KindByte:
		a.pc += uint16(len(parsed.Exprs))
	case KindRes:
		a.pc += uint16(parsed.Res)
	case KindString:
		n := byteLength(parsed.StringLit)
		if parsed.NullTerm {
			n++
		}
		a.pc += uint16(n)
	case KindInstr:
		mode, _ := ClassifyOperand(parsed.Mnemonic, parsed.Operand)
		a.pc += uint16(instrSize(mode))
	}
	a.entries = append(a.entries, entry{lineNo: lineNo, raw: raw, parsed: parsed})
	return nil
}

func instrSize(mode opcodes.Mode) int {
	if mode == opcodes.BYTE {
		return 1
	}
	return mode.Length()
}

// Pass2 walks the entries Pass1 recorded, resolving values and emitting
// bytes into a scratch buffer spanning the full 64 KiB address space,
// indexed by absolute program counter rather than by offset from Origin.
// A mid-stream .org is free to target any address, including one below
// Origin (the common idiom of declaring zero-page variables under a low
// .org before switching to the real code origin; spec.md places no lower
// bound on .org and multi-segment linking of disjoint regions is an
// explicit non-goal, so only the single contiguous region starting at
// Origin is returned). The returned slice runs from Origin to the final
// program counter or the highest address written, whichever is larger, so
// trailing .res space is included.
func (a *Assembler) Pass2() ([]byte, error) {
	full := make([]byte, 0x10000)
	a.pc = a.Origin
	maxWritten := int(a.Origin)

	for _, e := range a.entries {
		switch e.parsed.Kind {
		case KindLabel:
			// no bytes; address was already bound in Pass1.

		case KindOrg:
			a.pc = e.parsed.Org

		case KindWord:
			for _, tok := range e.parsed.Exprs {
				v, err := resolveValue(a.Labels, tok, e.lineNo)
				if err != nil {
					return nil, err
				}
				full[a.pc] = byte(v)
				full[a.pc+1] = byte(v >> 8)
				maxWritten = max(maxWritten, int(a.pc)+2)
				a.pc += 2
			}

		case KindByte:
			for _, tok := range e.parsed.Exprs {
				v, err := resolveValue(a.Labels, tok, e.lineNo)
				if err != nil {
					return nil, err
				}
				full[a.pc] = byte(v)
				maxWritten = max(maxWritten, int(a.pc)+1)
				a.pc++
			}

		case KindRes:
			a.pc += uint16(e.parsed.Res)

		case KindString:
			raw := e.parsed.StringLit
			var bytesOut []byte
			if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
				b, _ := unescapeString(raw[1 : len(raw)-1])
				bytesOut = b
			} else {
				bytesOut = []byte(raw)
			}
			copy(full[a.pc:], bytesOut)
			maxWritten = max(maxWritten, int(a.pc)+len(bytesOut))
			a.pc += uint16(len(bytesOut))
			if e.parsed.NullTerm {
				full[a.pc] = 0
				maxWritten = max(maxWritten, int(a.pc)+1)
				a.pc++
			}

		case KindInstr:
			n, err := a.emitInstr(e, full)
			if err != nil {
				return nil, err
			}
			maxWritten = max(maxWritten, n)
		}
	}

	end := max(int(a.pc), maxWritten)
	if end > len(full) {
		end = len(full)
	}
	if end <= int(a.Origin) {
		return []byte{}, nil
	}
	return full[a.Origin:end], nil
}

func (a *Assembler) emitInstr(e entry, full []byte) (int, error) {
	mode, value := ClassifyOperand(e.parsed.Mnemonic, e.parsed.Operand)
	pc := a.pc

	if mode == opcodes.REL {
		op, ok := opcodes.Encode(e.parsed.Mnemonic, opcodes.REL)
		if !ok {
			return 0, EncodingError{Mnemonic: e.parsed.Mnemonic, Mode: mode}
		}
		target, ok := a.Labels[value]
		if !ok {
			return 0, UnknownLabel{Line: e.lineNo, Pass: 2, Name: value}
		}
		offset := uint8((int(target) - (int(pc) + 2)) & 0xFF)
		full[pc] = op
		full[pc+1] = offset
		a.pc += 2
		return int(pc) + 2, nil
	}

	encodeMode := mode
	if mode == opcodes.BYTE {
		// Falls back to whatever opcode the bare mnemonic names under
		// IMPLIED, matching the original's raw-mnemonic lookup for
		// operands nothing else could classify.
		encodeMode = opcodes.IMPLIED
	}
	op, ok := opcodes.Encode(e.parsed.Mnemonic, encodeMode)
	if !ok {
		return 0, EncodingError{Mnemonic: e.parsed.Mnemonic, Mode: mode}
	}
	full[pc] = op

	n := mode.OperandBytes()
	if mode == opcodes.BYTE {
		n = 0
	}
	if n == 0 {
		a.pc++
		return int(pc) + 1, nil
	}

	v, err := resolveValue(a.Labels, value, e.lineNo)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		full[pc+1] = byte(v)
	} else {
		full[pc+1] = byte(v)
		full[pc+2] = byte(v >> 8)
	}
	a.pc += uint16(1 + n)
	return int(pc) + 1 + n, nil
}
