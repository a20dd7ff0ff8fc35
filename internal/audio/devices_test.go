package audio

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPortAudio(t *testing.T) {
	t.Helper()
	if err := Initialize(); err != nil {
		t.Skipf("PortAudio unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := Terminate(); err != nil {
			t.Fatalf("Failed to terminate PortAudio: %v", err)
		}
	})
}

// fakeDevices replaces the PortAudio device queries for the test.
func fakeDevices(t *testing.T, infos []*portaudio.DeviceInfo, def *portaudio.DeviceInfo) {
	t.Helper()
	origDevices, origDefault := paLibDevicesFunc, paLibDefaultInputDeviceFunc
	t.Cleanup(func() {
		paLibDevicesFunc, paLibDefaultInputDeviceFunc = origDevices, origDefault
	})
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, nil }
	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		if def == nil {
			return nil, fmt.Errorf("no default input")
		}
		return def, nil
	}
}

func testDeviceInfos() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{
			Name:                    "Built-in Microphone",
			MaxInputChannels:        1,
			DefaultSampleRate:       44100,
			DefaultLowInputLatency:  3 * time.Millisecond,
			DefaultHighInputLatency: 12 * time.Millisecond,
		},
		{
			Name:              "Built-in Output",
			MaxOutputChannels: 2,
			DefaultSampleRate: 48000,
		},
		{
			Name:              "USB Interface",
			MaxInputChannels:  2,
			MaxOutputChannels: 2,
			DefaultSampleRate: 48000,
		},
	}
}

func TestHostDevices(t *testing.T) {
	setupPortAudio(t)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices error: %v", err)
	}
	if len(devices) == 0 {
		t.Skip("No audio devices found on system")
	}
	for i, d := range devices {
		if d.ID != i {
			t.Errorf("Device ID mismatch: got %d, want %d", d.ID, i)
		}
		if d.Name == "" {
			t.Errorf("Device %d has empty name", i)
		}
		if d.DefaultSampleRate <= 0 {
			t.Errorf("Device %d has invalid sample rate: %f", i, d.DefaultSampleRate)
		}
	}
}

func TestHostDevicesMapping(t *testing.T) {
	infos := testDeviceInfos()
	fakeDevices(t, infos, infos[0])

	devices, err := HostDevices()
	require.NoError(t, err)
	require.Len(t, devices, 3)

	mic := devices[0]
	assert.Equal(t, 0, mic.ID)
	assert.Equal(t, "Built-in Microphone", mic.Name)
	assert.Equal(t, "Input", mic.Type())
	assert.True(t, mic.IsInput())
	assert.True(t, mic.DefaultInput)
	assert.Equal(t, 3*time.Millisecond, mic.LowInputLatency)

	assert.Equal(t, "Output", devices[1].Type())
	assert.False(t, devices[1].IsInput())
	assert.False(t, devices[1].DefaultInput)

	assert.Equal(t, "Input/Output", devices[2].Type())
	assert.False(t, devices[2].DefaultInput)

	assert.Equal(t, "Unavailable", Device{}.Type())
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
	infos := testDeviceInfos()
	fakeDevices(t, infos, infos[0])

	t.Run("Default input device", func(t *testing.T) {
		dev, err := InputDevice(-1)
		require.NoError(t, err)
		assert.Equal(t, "Built-in Microphone", dev.Name)
	})

	t.Run("Valid input device", func(t *testing.T) {
		dev, err := InputDevice(2)
		require.NoError(t, err)
		assert.Equal(t, "USB Interface", dev.Name)
	})

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"Negative ID", -2, "invalid device ID"},
		{"Too high ID", len(infos) + 10, "invalid device ID"},
		{"Non-input device", 1, "does not support input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InputDevice(tt.id)
			if err == nil {
				t.Errorf("Expected error for ID %d", tt.id)
			} else if !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("Error = %q, want substring %q", err.Error(), tt.substr)
			}
		})
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
	fakeDevices(t, testDeviceInfos(), nil)

	_, err := InputDevice(-1)
	if err == nil || !strings.Contains(err.Error(), "no default input") {
		t.Errorf("expected mock error, got %v", err)
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

func TestNilDevices(t *testing.T) {
	fakeDevices(t, nil, nil)

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

func TestListDevices(t *testing.T) {
	infos := testDeviceInfos()
	fakeDevices(t, infos, infos[0])

	var out bytes.Buffer
	require.NoError(t, ListDevices(&out))

	text := out.String()
	assert.Contains(t, text, "Available Audio Devices")
	assert.Contains(t, text, "[0] Built-in Microphone (Input)")
	assert.Contains(t, text, "[1] Built-in Output (Output)")
	assert.Contains(t, text, "[2] USB Interface (Input/Output)")
	assert.Contains(t, text, "Default sample rate: 48000 Hz")
	assert.Contains(t, text, "Latency: Low=3.00ms, High=12.00ms")
}
