package hal

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Time provides the timer interrupt as a tick stream.
//
// Each tick is one timer period; the sequence number counts periods since
// boot. Ticks are dropped, not queued, when the consumer falls behind.
type Time interface {
	Ticks() <-chan uint64
}

// HAL is the machine the kernel core runs on: a console log, an optional
// screen and a timer.
type HAL interface {
	Logger() Logger
	Display() Display
	Time() Time
}
