// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

var fakeHost = []*portaudio.DeviceInfo{
	{Name: "Built-in Microphone", MaxInputChannels: 1, DefaultSampleRate: 48000},
	{Name: "Loopback", MaxInputChannels: 2, MaxOutputChannels: 2, DefaultSampleRate: 44100,
		DefaultLowInputLatency: 3 * time.Millisecond, DefaultHighInputLatency: 12 * time.Millisecond},
	{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 44100},
}

// withHost swaps the PortAudio device queries for the duration of the test.
func withHost(t *testing.T, devices []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) {
	t.Helper()
	origDevices, origDefault := paLibDevicesFunc, paLibDefaultInputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultInputDeviceFunc = origDevices, origDefault
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return devices, nil }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if def == nil {
			return nil, errors.New("no default")
		}
		return def, nil
	}
}

func TestHostDevices(t *testing.T) {
	withHost(t, fakeHost, nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) != len(fakeHost) {
		t.Fatalf("got %d devices, want %d", len(devices), len(fakeHost))
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name != fakeHost[i].Name {
			t.Errorf("Device %d name = %q", i, d.Name)
		}
	}
	if devices[1].LowInputLatency != 3*time.Millisecond {
		t.Errorf("latency not carried: %s", devices[1].LowInputLatency)
	}

	stereo := []bool{false, true, false}
	kinds := []string{"Input", "Input/Output", "Output"}
	for i, d := range devices {
		if d.Stereo() != stereo[i] {
			t.Errorf("%s Stereo() = %v", d.Name, d.Stereo())
		}
		if d.Kind() != kinds[i] {
			t.Errorf("%s Kind() = %q, want %q", d.Name, d.Kind(), kinds[i])
		}
	}
}

func TestHostDevices_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := HostDevices()
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInputDevice(t *testing.T) {
	withHost(t, fakeHost, fakeHost[1])

	dev, err := InputDevice(1)
	if err != nil {
		t.Fatalf("InputDevice(1) error: %v", err)
	}
	if dev.Name != "Loopback" {
		t.Errorf("InputDevice(1) = %q", dev.Name)
	}

	dev, err = InputDevice(-1)
	if err != nil || dev.Name != "Loopback" {
		t.Errorf("default device = %v, %v", dev, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
		stereo bool
	}{
		{"Negative ID", -2, "invalid device ID", false},
		{"Too high ID", len(fakeHost) + 10, "invalid device ID", false},
		{"Mono input", 0, "does not support stereo input", true},
		{"Output only", 2, "does not support stereo input", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InputDevice(tt.id)
			if err == nil {
				t.Fatalf("Expected error for ID %d", tt.id)
			}
			if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
			if errors.Is(err, ErrNotStereo) != tt.stereo {
				t.Errorf("errors.Is(err, ErrNotStereo) = %v", !tt.stereo)
			}
		})
	}
}

func TestInputDeviceMonoDefault(t *testing.T) {
	withHost(t, fakeHost, fakeHost[0])

	if _, err := InputDevice(-1); !errors.Is(err, ErrNotStereo) {
		t.Errorf("mono default accepted: %v", err)
	}
}

func TestInputDevice_paDevicesError(t *testing.T) {
	orig := paDevicesFunc
	defer func() { paDevicesFunc = orig }()
	paDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock error")
	}

	_, err := InputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInputDevice_paDefaultInputDeviceError(t *testing.T) {
	withHost(t, fakeHost, nil)

	orig := paLibDefaultInputDeviceFunc
	defer func() { paLibDefaultInputDeviceFunc = orig }()
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("mock default input error")
	}

	_, err := InputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "mock default input error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestListDevices(t *testing.T) {
	withHost(t, fakeHost, nil)

	var out bytes.Buffer
	if err := ListDevices(&out); err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"*[1] Loopback (Input/Output)",
		" [0] Built-in Microphone (Input)",
		"Latency: Low=3.00ms, High=12.00ms",
		"* stereo capture supported",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestErrorInitialize(t *testing.T) {
	orig := paLibInitialize
	defer func() { paLibInitialize = orig }()

	paLibInitialize = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibInitialize = func() error { return fmt.Errorf("mock init error") }
	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("expected mock init error, got %v", err)
	}
}

func TestErrorTerminate(t *testing.T) {
	orig := paLibTerminate
	defer func() { paLibTerminate = orig }()

	paLibTerminate = func() error { return nil }
	if err := Terminate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}

	paLibTerminate = func() error { return fmt.Errorf("mock term error") }
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("expected mock term error, got %v", err)
	}
}

func TestGetDevices(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	defer func() { paLibInitialize, paLibTerminate = origInit, origTerm }()
	withHost(t, fakeHost, nil)

	terminated := false
	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { terminated = true; return nil }

	devices, err := GetDevices()
	if err != nil || len(devices) != 3 {
		t.Fatalf("GetDevices = %d devices, %v", len(devices), err)
	}
	if !terminated {
		t.Error("GetDevices did not terminate PortAudio")
	}

	paLibInitialize = func() error { return errors.New("no host") }
	if _, err := GetDevices(); err == nil {
		t.Error("expected init error")
	}
}

func TestNilDevices(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, nil
	}

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil {
		t.Errorf("expected empty slice, got nil")
	}
	if len(devices) != 0 {
		t.Errorf("expected length 0, got %d", len(devices))
	}
}

func TestPortAudioNotInitialized(t *testing.T) {
	orig := paLibDevicesFunc
	defer func() { paLibDevicesFunc = orig }()
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	devices, err := paDevices()
	if err == nil || !strings.Contains(err.Error(), "PortAudio not initialized") {
		t.Errorf("expected 'PortAudio not initialized' error, got %v", err)
	}
	if devices != nil {
		t.Errorf("expected devices to be nil on error, got %v", devices)
	}
}
