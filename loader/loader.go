// Package loader assembles or reads a program image, wires up the baseline
// memory-mapped I/O handlers, and drives the CPU loop to completion,
// mirroring the sequence the original loader.py follows: assemble-or-read,
// load, register handlers, run, join the screen goroutine, optionally dump
// ROM contents for debugging.
package loader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gamerjamer43/mbox16/asm"
	"github.com/gamerjamer43/mbox16/cpu"
	"github.com/gamerjamer43/mbox16/display"
	mboxio "github.com/gamerjamer43/mbox16/io"
	"github.com/gamerjamer43/mbox16/memory"
)

// IOError reports a failure reading a source/ROM file or writing output.
type IOError struct {
	Path string
	Op   string
	Err  error
}

func (e IOError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e IOError) Unwrap() error { return e.Err }

// Image is a loaded program: the memory it was placed into, the address it
// starts at, and how many bytes it occupies (for the optional post-run
// dump).
type Image struct {
	Mem    *memory.Fabric
	Origin uint16
	Length int
}

// Load reads path and places its contents into a fresh memory fabric.
// ".asm" and ".s" sources are assembled in-process; anything else is
// treated as a raw little-endian ROM image and loaded at $A000.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, IOError{Path: path, Op: "read", Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	mem := memory.New()

	switch ext {
	case ".asm", ".s":
		code, err := asm.Assemble(string(data))
		if err != nil {
			return nil, err
		}
		mem.LoadROM(code, asm.DefaultOrigin)
		return &Image{Mem: mem, Origin: asm.DefaultOrigin, Length: len(code)}, nil
	default:
		mem.LoadROM(data, asm.DefaultOrigin)
		return &Image{Mem: mem, Origin: asm.DefaultOrigin, Length: len(data)}, nil
	}
}

// RunConfig configures Run's I/O and display behavior.
type RunConfig struct {
	// Stdin/Stdout back the $D010/$D020 console handlers. Defaults to
	// os.Stdin/os.Stdout if nil.
	Stdin  io.Reader
	Stdout io.Writer

	// DisplayScale, if non-zero, opens an SDL window at that pixel scale
	// and starts the screen goroutine. Zero disables the display.
	DisplayScale int

	// PrintData dumps the Length bytes starting at Origin to Stdout after
	// the run halts, for debugging.
	PrintData bool
}

// Run installs the baseline MMIO handlers on img.Mem, positions the CPU at
// img.Origin and steps it until it reaches a BRK opcode (which it then
// executes, so BRK's vectoring side effects happen) or ctx is canceled. The
// display goroutine, if started, is always joined before Run returns.
func Run(ctx context.Context, img *Image, cfg RunConfig) error {
	stdin := cfg.Stdin
	if stdin == nil {
		stdin = os.Stdin
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	var console mboxio.Port8 = mboxio.NewStdinPort(stdin)
	img.Mem.RegisterWriteHandler(0xD020, func(addr uint16, val uint8) {
		fmt.Fprintf(stdout, "%c", val)
	})
	img.Mem.RegisterReadHandler(0xD010, func(addr uint16) uint8 {
		return console.Input()
	})

	c := cpu.Init(&cpu.ChipDef{Mem: img.Mem})
	c.PC = img.Origin

	var wg sync.WaitGroup
	var stopDisplay context.CancelFunc
	if cfg.DisplayScale > 0 {
		screen, err := display.NewScreen(img.Mem, cfg.DisplayScale)
		if err != nil {
			return err
		}
		var dctx context.Context
		dctx, stopDisplay = context.WithCancel(context.Background())
		wg.Add(1)
		go screen.Run(dctx, &wg, 60)
	}

	runErr := stepToHalt(ctx, c, img.Mem)

	if stopDisplay != nil {
		stopDisplay()
		wg.Wait()
	}

	if cfg.PrintData {
		dumpImage(stdout, img)
	}

	return runErr
}

// stepToHalt steps c until the byte at PC is a BRK opcode, at which point
// it executes that BRK (so its interrupt vectoring runs) and returns, or
// until ctx is canceled between instructions.
func stepToHalt(ctx context.Context, c *cpu.Chip, mem *memory.Fabric) error {
	for {
		select {
		case <-ctx.Done():
			return cpu.Interrupted{}
		default:
		}
		if mem.Read(c.PC) == 0x00 {
			return c.Step()
		}
		if err := c.Step(); err != nil {
			return err
		}
	}
}

func dumpImage(w io.Writer, img *Image) {
	fmt.Fprintln(w, "\nROM Data Dump:")
	for i := 0; i < img.Length; i++ {
		addr := img.Origin + uint16(i)
		fmt.Fprintf(w, "$%.4X: %.2X\n", addr, img.Mem.Read(addr))
	}
}
