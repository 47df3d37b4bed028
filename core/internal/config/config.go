// Package config holds the run configuration: output roots, capture
// durations, per-tool timeouts and tool catalog overrides.
package config

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"bitprobe/collectors/system"
	"bitprobe/tools"
)

type Capture struct {
	TrafficDuration        time.Duration `yaml:"traffic_duration"`
	TrafficInterface       string        `yaml:"traffic_interface"`
	ProcessMonitorDuration time.Duration `yaml:"process_monitor_duration"`
}

type Timeouts struct {
	Tool       time.Duration `yaml:"tool"`
	MemoryDump time.Duration `yaml:"memory_dump"`
	Volatility time.Duration `yaml:"volatility"`
	Ghidra     time.Duration `yaml:"ghidra"`
	Yara       time.Duration `yaml:"yara"`
}

type Config struct {
	// Output is the base directory of tools, artifacts, reports and logs.
	Output   string `yaml:"output"`
	ToolsDir string `yaml:"tools_dir"`

	Capture  Capture  `yaml:"capture"`
	Timeouts Timeouts `yaml:"timeouts"`

	SystemLogs   []string `yaml:"system_logs"`
	YaraRules    string   `yaml:"yara_rules"`
	IOCFile      string   `yaml:"ioc_file"`
	GhidraTarget string   `yaml:"ghidra_target"`

	// Tools replace or extend catalog entries with the same ID.
	Tools []tools.Tool `yaml:"tools"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output: ".",
		Capture: Capture{
			TrafficDuration:        60 * time.Second,
			TrafficInterface:       "1",
			ProcessMonitorDuration: 60 * time.Second,
		},
		Timeouts: Timeouts{
			Tool:       30 * time.Second,
			MemoryDump: 1800 * time.Second,
			Volatility: 180 * time.Second,
			Ghidra:     240 * time.Second,
			Yara:       300 * time.Second,
		},
		SystemLogs: system.DefaultLogs(runtime.GOOS),
		YaraRules:  filepath.Join("rules", "malware_rules.yar"),
	}
}

// Load reads a YAML file and fills every unset value from Default. An empty
// path returns Default.
func Load(fs afero.Fs, path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}
	return Parse(b)
}

func Parse(b []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	if err := mergo.Merge(&c, Default()); err != nil {
		return Config{}, errors.Wrap(err, "apply defaults")
	}
	return c, nil
}

// Resolve makes relative paths absolute against the output directory. The
// tools directory defaults to <output>/tools.
func (c Config) Resolve() Config {
	out := c
	if out.ToolsDir == "" {
		out.ToolsDir = filepath.Join(out.Output, "tools")
	}
	if out.YaraRules != "" && !filepath.IsAbs(out.YaraRules) {
		out.YaraRules = filepath.Join(out.Output, out.YaraRules)
	}
	return out
}

// Validate rejects values no run can use.
func (c Config) Validate() error {
	if c.Output == "" {
		return errors.New("output directory is required")
	}
	if c.Capture.TrafficDuration <= 0 {
		return errors.New("capture.traffic_duration must be positive")
	}
	if c.Capture.ProcessMonitorDuration <= 0 {
		return errors.New("capture.process_monitor_duration must be positive")
	}
	for name, d := range map[string]time.Duration{
		"timeouts.tool":        c.Timeouts.Tool,
		"timeouts.memory_dump": c.Timeouts.MemoryDump,
		"timeouts.volatility":  c.Timeouts.Volatility,
		"timeouts.ghidra":      c.Timeouts.Ghidra,
		"timeouts.yara":        c.Timeouts.Yara,
	} {
		if d <= 0 {
			return errors.Errorf("%s must be positive", name)
		}
	}
	for _, t := range c.Tools {
		if t.ID == "" {
			return errors.New("tool override without id")
		}
	}
	return nil
}
