// mboxasm assembles a source file and writes the resulting ROM image into
// a roms/ directory (set by -roms_dir), mirroring the original assembler.py
// tool.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/gamerjamer43/mbox16/asm"
)

var romsDir = flag.String("roms_dir", "roms", "Directory to write the assembled .rom file into.")

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Usage: %s <source.asm>", os.Args[0])
	}
	source := flag.Args()[0]

	text, err := os.ReadFile(source)
	if err != nil {
		log.Fatalf("Can't read %q: %v", source, err)
	}
	code, err := asm.Assemble(string(text))
	if err != nil {
		log.Fatalf("Assembly error in %q: %v", source, err)
	}

	if err := os.MkdirAll(*romsDir, 0o755); err != nil {
		log.Fatalf("Can't create %q: %v", *romsDir, err)
	}
	base := filepath.Base(source)
	outname := filepath.Join(*romsDir, base[:len(base)-len(filepath.Ext(base))]+".rom")
	if err := os.WriteFile(outname, code, 0o644); err != nil {
		log.Fatalf("Can't write %q: %v", outname, err)
	}
	fmt.Printf("Created ROM file: %s\n", outname)
}
