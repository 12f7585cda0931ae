//go:build !(linux || darwin || freebsd)

package preflight

func availableSpace(_ string) (uint64, error) {
	// No portable free-space query here; Policy decides the outcome.
	return 0, ErrUnsupported
}
