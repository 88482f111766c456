//go:build !linux

package capture

import "fmt"

// openDevice has no real backend outside Linux; the daemon falls back to
// an external sample source (e.g. a test harness feeding Push directly)
// on other platforms.
func openDevice(path string) (Device, error) {
	return nil, fmt.Errorf("capture: no PDM device backend for this platform (path %q)", path)
}
