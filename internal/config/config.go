// Package config parses the CLI surface of spec.md §6: a path (file or
// directory) and an optional device selection, following the teacher's
// *string/*int flag-pointer convention but on spf13/pflag rather than the
// stdlib flag package, so long-form GNU-style flags are available.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Options is the parsed CLI configuration.
type Options struct {
	Path      *string
	Device    *int
	Exclusive *bool
	BufferMs  *float64
	ListOnly  *bool
	Help      *bool
}

// Parse builds an Options from args (typically os.Args[1:]).
func Parse(args []string) (*Options, error) {
	fs := pflag.NewFlagSet("rhap", pflag.ContinueOnError)

	opts := &Options{}
	opts.Device = fs.IntP("device", "d", -1, "render device index (default: system default)")
	opts.Exclusive = fs.BoolP("exclusive", "x", true, "open the device in exclusive mode")
	opts.BufferMs = fs.Float64P("buffer", "b", 0, "requested buffer length in milliseconds (0 = device default)")
	opts.ListOnly = fs.BoolP("list-devices", "l", false, "list render devices and exit")
	opts.Help = fs.BoolP("help", "h", false, "show this help message")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var path string
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	opts.Path = &path

	if !*opts.Help && !*opts.ListOnly && path == "" {
		fs.Usage()
		return nil, fmt.Errorf("config: a file or directory path is required")
	}

	return opts, nil
}
