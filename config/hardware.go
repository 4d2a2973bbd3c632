package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentivox/go-emotion/tensor"
)

// HardwareConfig selects the compute device for a run. It lives in a
// separate YAML file referenced by the run config, so the same run can
// move between machines without edits.
type HardwareConfig struct {
	Device         string `yaml:"device"`
	VisibleDevices string `yaml:"visible_devices"`
}

// LoadHardware reads a hardware config. An empty path yields the CPU
// default.
func LoadHardware(path string) (*HardwareConfig, error) {
	hw := &HardwareConfig{Device: "cpu"}
	if path == "" {
		return hw, nil
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading hardware config %q: %v", ErrConfiguration, path, err)
	}
	if err := yaml.Unmarshal(blob, hw); err != nil {
		return nil, fmt.Errorf("%w: decoding hardware config %q: %v", ErrConfiguration, path, err)
	}
	if hw.Device == "" {
		hw.Device = "cpu"
	}
	if hw.Device != "cpu" && hw.Device != "accelerator" {
		return nil, fmt.Errorf("%w: unknown device %q (known: cpu, accelerator)", ErrConfiguration, hw.Device)
	}
	return hw, nil
}

// DeviceType maps the configured device onto the tensor backend.
func (hw *HardwareConfig) DeviceType() tensor.DeviceType {
	if hw.Device == "accelerator" {
		return tensor.Accelerator
	}
	return tensor.CPU
}
