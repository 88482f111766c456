//go:build linux

package capture

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// linuxDevice wraps a raw character device file descriptor (e.g. an ALSA
// PCM capture node or a PDM driver's /dev entry) opened non-blocking.
type linuxDevice struct {
	fd int
}

func openDevice(path string) (Device, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("capture: open device %s: %w", path, err)
	}
	return &linuxDevice{fd: fd}, nil
}

func (d *linuxDevice) Read(p []byte) (int, error) {
	n, err := unix.Read(d.fd, p)
	if err != nil {
		return n, fmt.Errorf("capture: read device: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("capture: device returned EOF")
	}
	return n, nil
}

func (d *linuxDevice) Close() error {
	return unix.Close(d.fd)
}

// gainIoctl is the driver-defined request number a PDM/ALSA capture
// driver exposes for hardware gain control. The exact number is
// driver-specific; no real hardware is attached in this environment, so
// this documents the seam rather than a verified UAPI constant.
const gainIoctl = 0x40045a01

func (d *linuxDevice) SetGain(idx int) error {
	if err := unix.IoctlSetInt(d.fd, gainIoctl, idx); err != nil {
		return fmt.Errorf("capture: set gain %d: %w", idx, err)
	}
	return nil
}
