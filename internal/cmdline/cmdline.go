// Package cmdline parses the boot command line:
//
//	mem=16M depth=32 threads=256 rounds=12 trace overflow
//
// Tokens are split with shell quoting rules. mem takes a frame count or a
// byte size with a K, M or G suffix.
package cmdline

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rhombus/kernel"

	"github.com/google/shlex"
)

// Options is the parsed command line.
type Options struct {
	Kernel kernel.Config

	// Rounds is the number of request rounds the demo client runs; 0 keeps
	// the default.
	Rounds int

	// Overflow adds a process that recurses until its state stack overflows.
	Overflow bool
}

var (
	ErrUnknownKey = errors.New("unknown key")
	ErrBadValue   = errors.New("bad value")
)

// Parse parses line into Options. Zero values mean "use the default".
func Parse(line string) (Options, error) {
	var opts Options

	toks, err := shlex.Split(line)
	if err != nil {
		return opts, fmt.Errorf("cmdline: %w", err)
	}

	for _, tok := range toks {
		key, val, hasVal := strings.Cut(tok, "=")
		switch key {
		case "mem":
			opts.Kernel.Frames, err = parseFrames(val)
		case "depth":
			opts.Kernel.StateDepth, err = parseCount(val)
		case "threads":
			opts.Kernel.ThreadObjects, err = parseCount(val)
		case "rounds":
			opts.Rounds, err = parseCount(val)
		case "trace":
			opts.Kernel.Trace, err = parseFlag(val, hasVal)
		case "overflow":
			opts.Overflow, err = parseFlag(val, hasVal)
		default:
			err = ErrUnknownKey
		}
		if err != nil {
			return opts, fmt.Errorf("cmdline: %q: %w", tok, err)
		}
	}
	return opts, nil
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, ErrBadValue
	}
	return n, nil
}

func parseFlag(s string, hasVal bool) (bool, error) {
	if !hasVal {
		return true, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, ErrBadValue
	}
	return b, nil
}

// parseFrames converts "4096", "512K", "16M" or "1G" into a frame count.
func parseFrames(s string) (uint32, error) {
	if s == "" {
		return 0, ErrBadValue
	}

	unit := uint64(0)
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = 1 << 10
	case 'm', 'M':
		unit = 1 << 20
	case 'g', 'G':
		unit = 1 << 30
	}

	var n uint64
	var err error
	if unit == 0 {
		n, err = strconv.ParseUint(s, 10, 32)
	} else {
		n, err = strconv.ParseUint(s[:len(s)-1], 10, 32)
		n = n * unit / kernel.PageSize
	}
	if err != nil || n == 0 || n > 1<<20 {
		return 0, ErrBadValue
	}
	return uint32(n), nil
}
