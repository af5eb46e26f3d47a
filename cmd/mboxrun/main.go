// mboxrun loads a source, ROM or binary image and executes it against the
// CPU and memory fabric, optionally opening a display window. It is the
// only multi-verb binary in the module, hence urfave/cli.v2 instead of the
// bare flag package the other two cmd/ tools use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"gopkg.in/urfave/cli.v2"

	"github.com/gamerjamer43/mbox16/loader"
)

func main() {
	app := &cli.App{
		Name:  "mboxrun",
		Usage: "Run a mbox16 program",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Assemble/load and execute a program",
				ArgsUsage: "<source.asm|.rom|.bin>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "scale", Value: 2, Usage: "Display pixel scale; 0 disables the window"},
					&cli.BoolFlag{Name: "printdata", Usage: "Dump ROM contents after the program halts"},
				},
				Action: runCmd,
			},
			{
				Name:      "info",
				Usage:     "Print the origin and size of a program without running it",
				ArgsUsage: "<source.asm|.rom|.bin>",
				Action:    infoCmd,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("run requires exactly one path argument", 1)
	}
	img, err := loader.Load(c.Args().First())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return loader.Run(ctx, img, loader.RunConfig{
		DisplayScale: c.Int("scale"),
		PrintData:    c.Bool("printdata"),
	})
}

func infoCmd(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("info requires exactly one path argument", 1)
	}
	img, err := loader.Load(c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("origin: $%.4X\nlength: %d bytes\n", img.Origin, img.Length)
	return nil
}
