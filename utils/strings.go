package utils

import (
	"unsafe"
)

// BytesToString aliases b without copying. b must not be modified afterwards.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return *(*string)(unsafe.Pointer(&b))
}
