package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/gamerjamer43/mbox16/asm"
	"github.com/gamerjamer43/mbox16/memory"
)

func writeTempSource(t *testing.T, text string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.asm")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAssemblesSourceAtDefaultOrigin(t *testing.T) {
	path := writeTempSource(t, "LDA #$42\nBRK\n")
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Origin != asm.DefaultOrigin {
		t.Errorf("Origin = $%.4X, want $%.4X", img.Origin, asm.DefaultOrigin)
	}
	if got := img.Mem.Read(img.Origin); got != 0xA9 {
		t.Errorf("first byte = $%.2X, want $A9 (LDA #imm)", got)
	}
}

func TestLoadRawBinaryAtDefaultOrigin(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.rom")
	if err := os.WriteFile(path, []byte{0xEA, 0x00}, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := img.Mem.Read(img.Origin); got != 0xEA {
		t.Errorf("first byte = $%.2X, want $EA (NOP)", got)
	}
}

func TestRunEchoesStdinToStdout(t *testing.T) {
	path := writeTempSource(t, "LDA $D010\nSTA $D020\nBRK\n")
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	in := bytes.NewBufferString("Q")
	var out bytes.Buffer
	if err := Run(context.Background(), img, RunConfig{Stdin: in, Stdout: &out}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := out.String(); got != "Q" {
		t.Errorf("stdout = %q, want %q", got, "Q")
	}
}

func TestRunHaltsOnBRK(t *testing.T) {
	path := writeTempSource(t, "LDA #$01\nBRK\n")
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	// Point the BRK vector somewhere harmless; Run returns once BRK has
	// executed, so nothing at the vector target runs.
	img.Mem.LoadROM([]byte{0x34, 0x12}, 0xFFFE)
	var out bytes.Buffer
	if err := Run(context.Background(), img, RunConfig{Stdin: &bytes.Buffer{}, Stdout: &out}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	path := writeTempSource(t, "loop: NOP\nJMP loop\n")
	img, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Run(ctx, img, RunConfig{Stdin: &bytes.Buffer{}, Stdout: &bytes.Buffer{}})
	if _, ok := err.(interface{ Error() string }); !ok || err == nil {
		t.Fatalf("Run with canceled context returned nil, want an error")
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.asm"))
	if _, ok := err.(IOError); !ok {
		t.Fatalf("err = %v (%T), want IOError", err, err)
	}
}

func TestDumpImagePrintsEveryByte(t *testing.T) {
	mem := memory.New()
	mem.LoadROM([]byte{0x01, 0x02}, 0xA000)
	img := &Image{Mem: mem, Origin: 0xA000, Length: 2}
	var out bytes.Buffer
	dumpImage(&out, img)
	want := "\nROM Data Dump:\n$A000: 01\n$A001: 02\n"
	if got := out.String(); got != want {
		t.Errorf("dump = %q, want %q", got, want)
	}
}
