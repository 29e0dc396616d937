package wire

import (
	"fmt"
	"strings"
)

// Options is the bit-packed modifier set carried in CommandHeader.Options.
//
// Bits are independent; combining them is a plain OR, so the order in which
// they are set never matters.
type Options uint8

const (
	OptNotify Options = 0x01 // send a notification when the command is done
	OptAction Options = 0x02 // follow-on commands are attached
	OptBlock  Options = 0x04 // block until the command is done
	OptIfThen Options = 0x08 // execute follow-on commands depending on outcome
)

// Has reports whether every bit in o is set.
func (opts Options) Has(o Options) bool {
	return opts&o == o
}

// Set turns on the bits in o.
func (opts *Options) Set(o Options) {
	*opts |= o
}

// Clear turns off the bits in o.
func (opts *Options) Clear(o Options) {
	*opts &^= o
}

// With returns a copy of opts with the bits in o turned on.
func (opts Options) With(o Options) Options {
	return opts | o
}

func (opts Options) String() string {
	if opts == 0 {
		return "none"
	}
	parts := make([]string, 0, 4)
	if opts.Has(OptNotify) {
		parts = append(parts, "notify")
	}
	if opts.Has(OptAction) {
		parts = append(parts, "action")
	}
	if opts.Has(OptBlock) {
		parts = append(parts, "block")
	}
	if opts.Has(OptIfThen) {
		parts = append(parts, "ifthen")
	}
	if rest := opts &^ (OptNotify | OptAction | OptBlock | OptIfThen); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%02x", uint8(rest)))
	}
	return strings.Join(parts, "|")
}
