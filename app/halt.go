package app

import (
	"fmt"
	"image/color"
	"strings"
	"unicode/utf8"

	"rhombus/hal"
	"rhombus/kernel"

	"tinygo.org/x/tinyfont"
)

// haltScreen reports a kernel halt on the log and paints it on the screen.
func haltScreen(h hal.HAL, k *kernel.Kernel, f *kernel.Fault) {
	lines := []string{
		"rhombus halt",
		"reason: " + f.Reason,
		fmt.Sprintf("frames: %d/%d in use", k.Pool().Query(), k.Pool().Capacity()),
	}
	if t := k.Running(); t != nil && t.Process() != nil {
		img := t.Image()
		lines = append(lines, fmt.Sprintf("pid %d slot %d depth %d eip=%08x esp=%08x",
			t.Process().PID(), t.Slot(), t.Depth(), img.EIP, img.ESP))
	}
	if len(f.Stack) > 0 {
		lines = append(lines, "stack:")
		for _, line := range strings.Split(string(f.Stack), "\n") {
			if line != "" {
				lines = append(lines, line)
			}
		}
	} else {
		lines = append(lines, "stack: unavailable")
	}

	if l := h.Logger(); l != nil {
		for _, line := range lines {
			l.WriteLineString(line)
		}
	}

	disp := h.Display()
	if disp == nil {
		return
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return
	}
	fb.ClearRGB(255, 255, 255)

	d := &fbDisplay{fb: fb}
	_, w := tinyfont.LineWidth(consoleFont, "0")
	cols := max(fb.Width()/max(int(w), 1), 1)
	fg := color.RGBA{A: 255}

	y := int16(0)
	for _, line := range lines {
		line = strings.ReplaceAll(line, "\t", "  ")
		for len(line) > 0 {
			if int(y)+fontHeight > fb.Height() {
				_ = fb.Present()
				return
			}
			var chunk string
			chunk, line = takeRunes(line, cols)
			tinyfont.WriteLine(d, consoleFont, 0, y+fontOffset, chunk, fg)
			y += fontHeight
		}
	}
	_ = fb.Present()
}

func takeRunes(s string, n int) (prefix, rest string) {
	i := 0
	for count := 0; i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
