package pipeline

import (
	"bitprobe/collectors"
	"bitprobe/collectors/analysis"
	"bitprobe/collectors/browser"
	"bitprobe/collectors/capture"
	"bitprobe/collectors/registry"
	"bitprobe/collectors/signature"
	"bitprobe/collectors/system"
	"bitprobe/core/internal/config"
)

// DefaultCollectors returns the scan order. Later entries depend on earlier
// ones: the IOC and YARA scans read the artifacts written before them and
// volatility reads the memory dump.
func DefaultCollectors(cfg config.Config) []collectors.Collector {
	traffic := capture.NewTrafficCollector(cfg.Capture.TrafficDuration)
	if cfg.Capture.TrafficInterface != "" {
		traffic.Interface = cfg.Capture.TrafficInterface
	}
	traffic.CountTimeout = cfg.Timeouts.Tool

	tcpview := capture.NewTCPViewCollector()
	tcpview.Timeout = cfg.Timeouts.Tool

	procmon := capture.NewProcMonCollector(cfg.Capture.ProcessMonitorDuration)
	procmon.StopTimeout = cfg.Timeouts.Tool

	return []collectors.Collector{
		system.NewInfoCollector(),
		system.NewProcessCollector(),
		system.NewConnectionCollector(),
		traffic,
		tcpview,
		procmon,
		system.NewLogCollector(cfg.SystemLogs, cfg.Timeouts.Tool),
		registry.NewCollector(),
		browser.NewCollector(),
		signature.NewYaraCollector(cfg.YaraRules, cfg.Timeouts.Yara),
		signature.NewIOCCollector(cfg.IOCFile),
		capture.NewMemoryDumpCollector(cfg.Timeouts.MemoryDump),
		analysis.NewVolatilityCollector(cfg.Timeouts.Volatility),
		analysis.NewGhidraCollector(cfg.GhidraTarget, cfg.Timeouts.Ghidra),
	}
}
