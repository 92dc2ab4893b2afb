//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package main

import "os"

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
