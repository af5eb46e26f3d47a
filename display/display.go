// Package display renders the memory fabric's screen-RAM window to a
// window on screen (via SDL) or, for headless test and CI use, to an
// in-memory image. It never writes to the memory fabric — it is a pure
// reader running on its own goroutine alongside the CPU's step loop.
package display

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/gamerjamer43/mbox16/memory"
)

// Screen geometry per the baseline MMIO contract: one byte per pixel in a
// square raster starting at $0400.
const (
	Base   = uint16(0x0400)
	Width  = 128
	Height = 128
	Bytes  = Width * Height
)

// Palette maps a screen byte to its RGBA color under the 3:3:2 scheme:
// bits 7-5 are red, bits 4-2 are green, bits 1-0 are blue, each channel
// scaled up to the full 0-255 range.
func Palette(b byte) color.RGBA {
	r := (b >> 5) & 0x7
	g := (b >> 2) & 0x7
	bl := b & 0x3
	return color.RGBA{
		R: uint8(int(r) * 255 / 7),
		G: uint8(int(g) * 255 / 7),
		B: uint8(int(bl) * 255 / 3),
		A: 0xFF,
	}
}

// RenderFrame reads the screen window from mem and maps it into a fresh
// RGBA image, with no SDL dependency — the path used by tests and by any
// caller that only wants pixels.
func RenderFrame(mem *memory.Fabric) *image.RGBA {
	buf := mem.ReadScreen(Base, Bytes)
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			img.SetRGBA(x, y, Palette(buf[y*Width+x]))
		}
	}
	return img
}

// fastImage pokes pixel bytes directly into an SDL surface's backing
// buffer, avoiding the per-pixel color.Color conversion Surface.Set does.
type fastImage struct {
	surface *sdl.Surface
	data    []byte
}

func (f *fastImage) Set(x, y int, c color.Color) {
	i := int32(y)*f.surface.Pitch + int32(x)*int32(f.surface.Format.BytesPerPixel)
	rgba := c.(color.RGBA)
	f.data[i+0] = rgba.R
	f.data[i+1] = rgba.G
	f.data[i+2] = rgba.B
	f.data[i+3] = rgba.A
}

// Screen owns the SDL window that mirrors memory's screen-RAM window.
type Screen struct {
	mem     *memory.Fabric
	scale   int
	window  *sdl.Window
	surface *sdl.Surface
	fi      *fastImage
}

// NewScreen opens an SDL window sized Width*scale by Height*scale and
// binds it to mem.
func NewScreen(mem *memory.Fabric, scale int) (*Screen, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, err
	}
	window, err := sdl.CreateWindow("mbox16", sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(Width*scale), int32(Height*scale), sdl.WINDOW_SHOWN)
	if err != nil {
		sdl.Quit()
		return nil, err
	}
	surface, err := window.GetSurface()
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return nil, err
	}
	fi := &fastImage{surface: surface, data: surface.Pixels()}
	return &Screen{mem: mem, scale: scale, window: window, surface: surface, fi: fi}, nil
}

func (s *Screen) blit() {
	buf := s.mem.ReadScreen(Base, Bytes)
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := Palette(buf[y*Width+x])
			for sy := 0; sy < s.scale; sy++ {
				for sx := 0; sx < s.scale; sx++ {
					s.fi.Set(x*s.scale+sx, y*s.scale+sy, c)
				}
			}
		}
	}
	s.window.UpdateSurface()
}

// Run blits at the given frame rate until ctx is canceled, then tears down
// the window. Call from its own goroutine; wg.Done is called on exit so a
// caller can join it after requesting cancellation.
func (s *Screen) Run(ctx context.Context, wg *sync.WaitGroup, fps int) {
	defer wg.Done()
	defer func() {
		s.window.Destroy()
		sdl.Quit()
	}()
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.blit()
		}
	}
}
