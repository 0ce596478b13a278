// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"musicviz/internal/config"

	"github.com/gordonklaus/portaudio"
)

// Channels is the capture layout: interleaved stereo.
const Channels = 2

// ErrNotStereo is returned for devices that cannot deliver two input channels.
var ErrNotStereo = errors.New("device does not support stereo input")

// PortAudio entry points, replaceable in tests.
var (
	paLibInitialize             = portaudio.Initialize
	paLibTerminate              = portaudio.Terminate
	paLibDevicesFunc            = portaudio.Devices
	paLibDefaultInputDeviceFunc = portaudio.DefaultInputDevice
	paDevicesFunc               = paDevices
)

// Device describes a host audio device.
type Device struct {
	ID                int
	Name              string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowInputLatency   time.Duration
	HighInputLatency  time.Duration
}

// Stereo reports whether the device can be used for capture.
func (d Device) Stereo() bool {
	return d.MaxInputChannels >= Channels
}

// Kind is "Input", "Output", "Input/Output" or "".
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	}
	return ""
}

// Initialize sets up the PortAudio subsystem.
// This must be called before any audio operations and paired with a Terminate() call.
func Initialize() error {
	if err := paLibInitialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return nil
}

// Terminate cleanly shuts down the PortAudio subsystem.
func Terminate() error {
	if err := paLibTerminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}

// HostDevices lists the devices of an initialized PortAudio host.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}
	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = toDevice(i, info)
	}
	return devices, nil
}

// GetDevices initializes PortAudio, lists the devices and terminates again.
// It is meant for callers that run before the engine owns the host.
func GetDevices() ([]Device, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	defer Terminate()
	return HostDevices()
}

func toDevice(id int, info *portaudio.DeviceInfo) Device {
	return Device{
		ID:                id,
		Name:              info.Name,
		MaxInputChannels:  info.MaxInputChannels,
		MaxOutputChannels: info.MaxOutputChannels,
		DefaultSampleRate: info.DefaultSampleRate,
		LowInputLatency:   info.DefaultLowInputLatency,
		HighInputLatency:  info.DefaultHighInputLatency,
	}
}

// InputDevice retrieves the audio input device for the given device ID.
// If deviceID is MinDeviceID (-1), returns the system default input device.
// Devices with fewer than two input channels are rejected.
func InputDevice(deviceID int) (*portaudio.DeviceInfo, error) {
	devices, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	var device *portaudio.DeviceInfo
	switch {
	case deviceID == config.MinDeviceID:
		device, err = paLibDefaultInputDeviceFunc()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
	case deviceID < 0 || deviceID >= len(devices):
		return nil, fmt.Errorf("invalid device ID: %d", deviceID)
	default:
		device = devices[deviceID]
	}

	if device.MaxInputChannels < Channels {
		return nil, fmt.Errorf("%q (%d input channels): %w", device.Name, device.MaxInputChannels, ErrNotStereo)
	}
	return device, nil
}

// ListDevices writes a plain-text description of every host device.
func ListDevices(w io.Writer) error {
	devices, err := HostDevices()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "\nAvailable Audio Devices\n\n")

	for _, d := range devices {
		marker := " "
		if d.Stereo() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s[%d] %s (%s)\n", marker, d.ID, d.Name, d.Kind())
		fmt.Fprintf(w, "    Input channels: %d, Output channels: %d\n", d.MaxInputChannels, d.MaxOutputChannels)
		fmt.Fprintf(w, "    Default sample rate: %.0f Hz\n", d.DefaultSampleRate)
		fmt.Fprintf(w, "    Latency: Low=%.2fms, High=%.2fms\n",
			d.LowInputLatency.Seconds()*1000,
			d.HighInputLatency.Seconds()*1000)
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "* stereo capture supported")

	return nil
}

// paDevices returns all available PortAudio devices, never a nil slice on success.
func paDevices() ([]*portaudio.DeviceInfo, error) {
	devices, err := paLibDevicesFunc()
	if err != nil {
		return nil, err
	}
	if devices == nil {
		devices = []*portaudio.DeviceInfo{}
	}
	return devices, nil
}
