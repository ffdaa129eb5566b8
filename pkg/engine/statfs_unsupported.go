//go:build !linux && !darwin && !freebsd

package engine

// freeBytes is not reported on this platform.
func freeBytes(string) (uint64, error) {
	return 0, nil
}
