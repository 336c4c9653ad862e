package app

import (
	"errors"
	"image/color"

	"rhombus/hal"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyterm"
)

var errRotation = errors.New("display rotation not supported")

// fbDisplay adapts a hal.Framebuffer to the drivers display interfaces used
// by tinyterm and tinyfont.
type fbDisplay struct {
	fb hal.Framebuffer
}

var _ tinyterm.Displayer = (*fbDisplay)(nil)

func (d *fbDisplay) Size() (x, y int16) {
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *fbDisplay) SetPixel(x, y int16, c color.RGBA) {
	d.fill(int(x), int(y), int(x)+1, int(y)+1, c)
}

func (d *fbDisplay) Display() error { return d.fb.Present() }

func (d *fbDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	d.fill(int(x), int(y), int(x)+int(width), int(y)+int(height), c)
	return nil
}

// ScrollUp moves the picture up by lines rows and clears the exposed bottom.
func (d *fbDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	h, stride := d.fb.Height(), d.fb.StrideBytes()
	n := int(lines)
	if n <= 0 {
		return nil
	}
	if n < h {
		buf := d.fb.Buffer()
		copy(buf, buf[n*stride:h*stride])
	}
	d.fill(0, max(h-n, 0), d.fb.Width(), h, bg)
	return nil
}

func (d *fbDisplay) SetScroll(line int16) {}

func (d *fbDisplay) SetRotation(rotation drivers.Rotation) error {
	if rotation != drivers.Rotation0 {
		return errRotation
	}
	return nil
}

func (d *fbDisplay) fill(x0, y0, x1, y1 int, c color.RGBA) {
	if d.fb.Format() != hal.PixelFormatRGB565 {
		return
	}
	x0, x1 = max(x0, 0), min(x1, d.fb.Width())
	y0, y1 = max(y0, 0), min(y1, d.fb.Height())

	pixel := hal.RGB565(c.R, c.G, c.B)
	buf, stride := d.fb.Buffer(), d.fb.StrideBytes()
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			off := y*stride + x*2
			buf[off] = byte(pixel)
			buf[off+1] = byte(pixel >> 8)
		}
	}
}

const (
	fontHeight = 6
	fontOffset = 5
)

var consoleFont tinyfont.Fonter = &tinyfont.TomThumb

// console mirrors log lines onto the framebuffer through a VT100 terminal.
// It also forwards each line to the host logger.
type console struct {
	next  hal.Logger
	d     *fbDisplay
	t     *tinyterm.Terminal
	dirty bool
}

func newConsole(h hal.HAL) *console {
	c := &console{next: h.Logger()}
	disp := h.Display()
	if disp == nil {
		return c
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return c
	}

	fb.ClearRGB(0, 0, 0)
	c.d = &fbDisplay{fb: fb}
	c.t = tinyterm.NewTerminal(c.d)
	c.t.Configure(&tinyterm.Config{
		Font:              consoleFont,
		FontHeight:        fontHeight,
		FontOffset:        fontOffset,
		UseSoftwareScroll: true,
	})
	return c
}

func (c *console) WriteLineString(s string) {
	if c.next != nil {
		c.next.WriteLineString(s)
	}
	if c.t == nil {
		return
	}
	c.t.Write([]byte(s))
	c.t.Write([]byte("\r\n"))
	c.dirty = true
}

func (c *console) WriteLineBytes(b []byte) {
	c.WriteLineString(string(b))
}

// flush presents the terminal if anything was written since the last flush.
func (c *console) flush() {
	if c.t == nil || !c.dirty {
		return
	}
	c.t.Display()
	c.dirty = false
}
