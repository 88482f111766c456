package capture

import "io"

// Device is the minimal hardware source contract: a stream of raw PCM
// bytes the caller reads into int16 sample blocks and feeds to Push.
// spec.md §1 treats the PDM driver itself as an external collaborator
// ("no file-level interface: the source is a hardware driver"); Device is
// the seam between that driver and this package's ring, with a real
// implementation on Linux and a stub everywhere else (device_linux.go,
// device_other.go).
type Device interface {
	io.ReadCloser

	// SetGain applies a new hardware gain index. Callers must only call
	// this between reads, never concurrently with one in flight, so the
	// new gain takes effect starting with the next window boundary and
	// never mid-window (spec.md §4.2 step 4).
	SetGain(idx int) error
}

// OpenDevice opens the platform's PDM/ALSA capture device at path. The
// returned Device yields raw little-endian int16 PCM; callers are
// responsible for framing it into HopSize blocks before calling Push.
func OpenDevice(path string) (Device, error) {
	return openDevice(path)
}
