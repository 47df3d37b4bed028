package tools

import "runtime"

const (
	TShark     = "tshark"
	TCPView    = "tcpview"
	Netstat    = "netstat"
	ProcMon    = "procmon"
	WevtUtil   = "wevtutil"
	JournalCtl = "journalctl"
	WinPmem    = "winpmem"
	AVML       = "avml"
	Volatility = "volatility3"
	Ghidra     = "ghidra"
	Yara       = "yara"
)

// DefaultCatalog returns the tool catalog for goos.
func DefaultCatalog(goos string) []Tool {
	python := "python3"
	ghidraScript := "analyzeHeadless"
	var wireshark []string
	if goos == "windows" {
		python = "python"
		ghidraScript = "analyzeHeadless.bat"
		wireshark = []string{"C:/Program Files/Wireshark/tshark.exe", "C:/Program Files (x86)/Wireshark/tshark.exe"}
	}

	return []Tool{
		{
			ID:       TShark,
			Name:     "TShark (Wireshark CLI)",
			Paths:    wireshark,
			Binaries: []string{"tshark"},
			Hint:     "Install Wireshark and make sure tshark is on PATH",
		},
		{
			ID:    TCPView,
			Name:  "TCPView (Sysinternals)",
			Paths: []string{"sysinternals/tcpview.exe", "sysinternals/tcpview64.exe"},
			Hint:  "Extract the Sysinternals Suite into the tools directory",
		},
		{
			ID:       Netstat,
			Name:     "netstat",
			Binaries: []string{"netstat"},
			Hint:     "Install net-tools",
		},
		{
			ID:    ProcMon,
			Name:  "Process Monitor (Sysinternals)",
			Paths: []string{"sysinternals/procmon.exe", "sysinternals/Procmon64.exe"},
			Hint:  "Extract the Sysinternals Suite into the tools directory",
		},
		{
			ID:       WevtUtil,
			Name:     "wevtutil",
			Binaries: []string{"wevtutil"},
			Hint:     "wevtutil ships with Windows; run on a Windows host",
		},
		{
			ID:       JournalCtl,
			Name:     "journalctl",
			Binaries: []string{"journalctl"},
			Hint:     "Install systemd or point system_logs at a host with a journal",
		},
		{
			ID:       WinPmem,
			Name:     "WinPMEM",
			Paths:    []string{"winpmem/winpmem_mini_x64_rc2.exe"},
			Binaries: []string{"winpmem"},
			Hint:     "Download WinPMEM into tools/winpmem",
		},
		{
			ID:       AVML,
			Name:     "AVML",
			Paths:    []string{"avml/avml"},
			Binaries: []string{"avml"},
			Hint:     "Download AVML into tools/avml",
		},
		{
			ID:       Volatility,
			Name:     "Volatility 3",
			Binaries: []string{"vol", "vol3"},
			Probe:    []string{python, "-m", "pip", "show", "volatility3"},
			Launcher: []string{python, "-m", "volatility3"},
			Hint:     "Install with: pip install volatility3",
		},
		{
			ID:       Ghidra,
			Name:     "Ghidra headless analyzer",
			Paths:    []string{"ghidra"},
			Search:   []string{ghidraScript},
			Binaries: []string{ghidraScript},
			Hint:     "Run tool installation to download and extract Ghidra into tools/ghidra",
		},
		{
			ID:       Yara,
			Name:     "YARA",
			Paths:    []string{"yara/yara64.exe", "yara/yara"},
			Binaries: []string{"yara", "yara64"},
			Hint:     "Install YARA and make sure the yara binary is on PATH",
		},
	}
}

// HostCatalog is DefaultCatalog for the running OS.
func HostCatalog() []Tool {
	return DefaultCatalog(runtime.GOOS)
}

// Merge replaces catalog entries with overrides of the same ID and appends
// new ones.
func Merge(catalog, overrides []Tool) []Tool {
	out := append([]Tool(nil), catalog...)
	for _, o := range overrides {
		replaced := false
		for i := range out {
			if out[i].ID == o.ID {
				out[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, o)
		}
	}
	return out
}
