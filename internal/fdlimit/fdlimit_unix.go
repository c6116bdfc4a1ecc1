//go:build !windows

// Package fdlimit raises the process's soft limit on open file
// descriptors, best-effort, before the Sort File Pool is asked to hold up
// to its configured ceiling of concurrently open files (at most 256).
package fdlimit

import "syscall"

// minOpenFilesLimit is comfortably above the Pool's hard file ceiling so
// the ceiling, not the OS limit, is the first thing a sort runs into.
const minOpenFilesLimit = 1024

// Raise attempts to raise RLIMIT_NOFILE to at least minOpenFilesLimit. A
// failure here is never fatal to a sort: the Pool's own ceiling still
// applies regardless, this only widens the margin under it.
func Raise() error {
	var rLimit syscall.Rlimit
	err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit)
	if err != nil {
		return err
	}

	if rLimit.Cur >= minOpenFilesLimit {
		return nil
	}

	if rLimit.Max < minOpenFilesLimit {
		return nil
	}

	rLimit.Cur = minOpenFilesLimit

	return syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit)
}
