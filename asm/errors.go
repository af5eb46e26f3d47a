package asm

import (
	"fmt"

	"github.com/gamerjamer43/mbox16/opcodes"
)

// SyntaxError reports a malformed line, an unknown directive, a malformed
// directive argument, or a label bound a second time. Operands no rule
// classifies are not syntax errors: they fall back to the BYTE mode.
type SyntaxError struct {
	Line   int
	Text   string
	Reason string
}

func (e SyntaxError) Error() string {
	return fmt.Sprintf("line %d: syntax error: %s (%q)", e.Line, e.Reason, e.Text)
}

// UnknownLabel reports an identifier that pass 2 could not resolve, whether
// bare, inside an IDENT±N expression, or as a branch target.
type UnknownLabel struct {
	Line int
	Pass int
	Name string
}

func (e UnknownLabel) Error() string {
	return fmt.Sprintf("line %d: pass %d: unknown label %q", e.Line, e.Pass, e.Name)
}

// UnknownValue reports a literal that is neither hex, decimal, a known
// label, nor a character literal.
type UnknownValue struct {
	Line  int
	Token string
}

func (e UnknownValue) Error() string {
	return fmt.Sprintf("line %d: unknown value %q", e.Line, e.Token)
}

// EncodingError reports a (mnemonic, mode) pair absent from the opcode
// matrix.
type EncodingError struct {
	Mnemonic string
	Mode     opcodes.Mode
}

func (e EncodingError) Error() string {
	return fmt.Sprintf("no opcode for %s in %s mode", e.Mnemonic, e.Mode)
}
