// Package io defines the single-byte input port contract used by the
// loader's $D010 console handler. The baseline MMIO install only needs an
// input port (blocking stdin read) and an output port (stdout char write);
// Port8 models the input side so the loader can swap a real stdin reader
// for a test fake without touching memory.Fabric.
package io

import (
	"bufio"
	stdio "io"
)

// Port8 defines an 8-bit input port.
type Port8 interface {
	// Input returns the next byte available on the port, blocking if
	// necessary until one is available.
	Input() uint8
}

// StdinPort is a Port8 backed by a buffered reader, the only implementation
// the loader needs: a blocking single-byte read off stdin (or any other
// io.Reader in tests).
type StdinPort struct {
	r *bufio.Reader
}

// NewStdinPort wraps r for use as a Port8.
func NewStdinPort(r stdio.Reader) *StdinPort {
	return &StdinPort{r: bufio.NewReader(r)}
}

// Input reads one byte from the underlying reader. A read error (including
// EOF) yields a zero byte rather than blocking forever.
func (p *StdinPort) Input() uint8 {
	b, _ := p.r.ReadByte()
	return b
}
