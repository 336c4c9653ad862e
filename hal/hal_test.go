//go:build !tinygo

package hal

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestHostTimeAdvance(t *testing.T) {
	ht := newHostTime(10 * time.Millisecond)
	start := time.Unix(100, 0)

	ht.advance(start)
	ht.advance(start.Add(25 * time.Millisecond))
	ht.advance(start.Add(35 * time.Millisecond))

	var got []uint64
	for len(ht.ch) > 0 {
		got = append(got, <-ht.ch)
	}
	if len(got) != 4 || got[3] != 4 {
		t.Fatalf("ticks = %v, want [1 2 3 4]", got)
	}
}

func TestRGB565RoundTrip(t *testing.T) {
	for _, c := range [][3]uint8{{0, 0, 0}, {255, 255, 255}, {255, 0, 0}, {0, 255, 0}, {0, 0, 255}} {
		r, g, b := rgb888From565(RGB565(c[0], c[1], c[2]))
		if r != c[0] || g != c[1] || b != c[2] {
			t.Fatalf("rgb888From565(RGB565(%v)) = %d,%d,%d", c, r, g, b)
		}
	}
}

func TestFramebufferClear(t *testing.T) {
	fb := newHostFramebuffer(4, 2)
	fb.ClearRGB(255, 0, 0)

	want := RGB565(255, 0, 0)
	if got := uint16(fb.buf[6]) | uint16(fb.buf[7])<<8; got != want {
		t.Fatalf("pixel = %#04x, want %#04x", got, want)
	}

	dst := make([]byte, 4*2*4)
	fb.snapshotRGBA(dst)
	if !bytes.Equal(dst[:4], []byte{255, 0, 0, 255}) {
		t.Fatalf("snapshot pixel = %v, want opaque red", dst[:4])
	}
}

func TestHostLogger(t *testing.T) {
	var buf bytes.Buffer
	h := newHost(&buf, time.Millisecond)
	h.Logger().WriteLineString("one")
	h.Logger().WriteLineBytes([]byte("two"))
	if got := buf.String(); got != "one\ntwo\n" {
		t.Fatalf("log = %q, want %q", got, "one\ntwo\n")
	}
}

func TestRunHeadlessStopsAfterTicks(t *testing.T) {
	var steps int
	err := RunHeadless(context.Background(), func(HAL) (func() error, error) {
		return func() error { steps++; return nil }, nil
	}, HeadlessConfig{Hz: 1000, Ticks: 3})
	if err != nil {
		t.Fatalf("RunHeadless() error = %v", err)
	}
	if steps != 3 {
		t.Fatalf("steps = %d, want 3", steps)
	}
}

func TestRunHeadlessStepError(t *testing.T) {
	boom := errors.New("boom")
	err := RunHeadless(context.Background(), func(HAL) (func() error, error) {
		return func() error { return boom }, nil
	}, HeadlessConfig{Hz: 1000})
	if !errors.Is(err, boom) {
		t.Fatalf("RunHeadless() error = %v, want %v", err, boom)
	}
}
