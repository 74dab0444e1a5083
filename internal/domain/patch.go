package domain

// AppConfig is the patcher configuration as it travels between the shell,
// the daemon and the UI. Field casing on the wire is fixed; the daemon's
// config.yaml uses its own keys (see infra/config).
type AppConfig struct {
	ServerURL          string `json:"serverUrl"`
	TargetFolder       string `json:"targetFolder"`
	FileListURL        string `json:"fileListUrl"`
	DownloadSpeedLimit uint64 `json:"downloadSpeedLimit"`
}

// LogEntry is one line of update output. Type is a free-form severity tag
// ("info", "success", "error"). Ordering is significant: the daemon only
// ever appends.
type LogEntry struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Log entry types emitted by the daemon.
const (
	LogInfo    = "info"
	LogSuccess = "success"
	LogError   = "error"
)

// VerificationReport lists files by integrity-check outcome.
type VerificationReport struct {
	Verified  []string `json:"verified"`
	Corrupted []string `json:"corrupted"`
}

// StatusReport is the final accounting of one update run. Produced once,
// on the terminal status poll, and forwarded verbatim to the UI.
type StatusReport struct {
	Updated      []string           `json:"updated"`
	Skipped      []string           `json:"skipped"`
	Failed       []string           `json:"failed"`
	Verification VerificationReport `json:"verification"`
}

// ProgressData is one polled snapshot of a running update. Logs are
// append-only across polls; a snapshot with Completed set is terminal.
type ProgressData struct {
	Progress     int           `json:"progress"`
	Total        int           `json:"total"`
	Logs         []LogEntry    `json:"logs"`
	Completed    bool          `json:"completed"`
	Error        string        `json:"error,omitempty"`
	StatusReport *StatusReport `json:"status_report,omitempty"`
}
