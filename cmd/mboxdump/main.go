// mboxdump assembles a source file and writes its binary image and/or a
// hex listing, mirroring the original dump.py tool's two output formats.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamerjamer43/mbox16/asm"
)

var (
	binDir = flag.String("bin_dir", "bin", "Directory to write .bin/.hex output into.")
	output = flag.String("output", "both", "One of hex, bin, both.")
)

func main() {
	flag.Parse()
	if len(flag.Args()) != 1 {
		log.Fatalf("Usage: %s [-output hex|bin|both] <source.asm>", os.Args[0])
	}
	switch *output {
	case "hex", "bin", "both":
	default:
		log.Fatalf("-output must be one of: hex, bin, both")
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

	if err := os.MkdirAll(*binDir, 0o755); err != nil {
		log.Fatalf("Can't create %q: %v", *binDir, err)
	}
	base := filepath.Base(source)
	stem := base[:len(base)-len(filepath.Ext(base))]

	if *output == "bin" || *output == "both" {
		binPath := filepath.Join(*binDir, stem+".bin")
		if err := os.WriteFile(binPath, code, 0o644); err != nil {
			log.Fatalf("Can't write %q: %v", binPath, err)
		}
		fmt.Printf("Binary written to: %s\n", binPath)
	}

	if *output == "hex" || *output == "both" {
		hexPath := filepath.Join(*binDir, stem+".hex")
		var b strings.Builder
		for i, v := range code {
			fmt.Fprintf(&b, "$%.4X: %.2X\n", int(asm.DefaultOrigin)+i, v)
		}
		if err := os.WriteFile(hexPath, []byte(b.String()), 0o644); err != nil {
			log.Fatalf("Can't write %q: %v", hexPath, err)
		}
		fmt.Printf("Hex dump written to: %s\n", hexPath)
	}
}
