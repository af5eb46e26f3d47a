package asm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/gamerjamer43/mbox16/opcodes"
)

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
var exprRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\s*([+-])\s*(\d+)$`)

func isIdentifier(s string) bool { return identRE.MatchString(s) }

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ClassifyOperand implements the fourteen operand-classification rules in
// their stated priority order: first match wins. ZPX/ZPY are deliberately
// never returned here — the ,X/,Y rules for $hex/decimal/identifier bases
// match before a zero-page-specific check could ever run, so the opcode
// matrix only ever sees ABSX/ABSY for indexed operands, even when the base
// fits in zero page. Preserving this rather than "fixing" it keeps the
// assembler's observable byte output unchanged.
func ClassifyOperand(mnemonic, operand string) (opcodes.Mode, string) {
	operand = strings.TrimSpace(operand)

	if strings.HasPrefix(operand, "#") {
		return opcodes.IMM, operand[1:]
	}
	if strings.HasPrefix(operand, "(") && strings.HasSuffix(operand, ",X)") {
		return opcodes.INDX, operand[1 : len(operand)-3]
	}
	if strings.HasPrefix(operand, "(") && strings.HasSuffix(operand, "),Y") {
		return opcodes.INDY, operand[1 : len(operand)-3]
	}
	if strings.HasPrefix(operand, "(") && strings.HasSuffix(operand, ")") {
		return opcodes.IND, operand[1 : len(operand)-1]
	}
	if strings.HasSuffix(operand, ",X") {
		value := strings.TrimSpace(operand[:len(operand)-2])
		if strings.HasPrefix(value, "$") || isDecimal(value) || isIdentifier(value) {
			return opcodes.ABSX, value
		}
	}
	if strings.HasSuffix(operand, ",Y") {
		value := strings.TrimSpace(operand[:len(operand)-2])
		if strings.HasPrefix(value, "$") || isDecimal(value) || isIdentifier(value) {
			return opcodes.ABSY, value
		}
	}
	if strings.EqualFold(operand, "A") {
		return opcodes.ACC, ""
	}
	if operand == "" {
		return opcodes.IMPLIED, ""
	}
	if opcodes.BranchMnemonics[mnemonic] && isIdentifier(operand) {
		return opcodes.REL, operand
	}
	if strings.HasPrefix(operand, "$") {
		if len(operand)-1 <= 2 {
			return opcodes.ZP, operand
		}
		return opcodes.ABS, operand
	}
	if isDecimal(operand) {
		v, _ := strconv.Atoi(operand)
		if v < 0x100 {
			return opcodes.ZP, operand
		}
		return opcodes.ABS, operand
	}
	if exprRE.MatchString(operand) {
		return opcodes.ABS, operand
	}
	if isIdentifier(operand) {
		return opcodes.ABS, operand
	}
	return opcodes.BYTE, operand
}
