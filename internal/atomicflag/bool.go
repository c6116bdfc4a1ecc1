// Package atomicflag is a tiny atomic Boolean, used by the Run Reader for
// its eof and retired flags.
package atomicflag

import "sync/atomic"

// Bool is an atomic Boolean.
type Bool int32

// Set sets the Boolean to value.
func (ab *Bool) Set(value bool) {
	var i int32 = 0
	if value {
		i = 1
	}

	atomic.StoreInt32((*int32)(ab), int32(i))
}

// Get gets the Boolean value.
func (ab *Bool) Get() bool {
	return atomic.LoadInt32((*int32)(ab)) != 0
}
