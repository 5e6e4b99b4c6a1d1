package backport

// Status describes the installed NetworkManager version relative to the
// configured backport target. It is recomputed from the OS on every
// inspection and never cached, since package state can change out-of-band.
type Status struct {
	IsBackported   bool   `json:"isBackported"`
	CurrentVersion string `json:"currentVersion,omitempty"`
	TargetVersion  string `json:"targetVersion"`
	Platform       string `json:"platform"`
	LeftoverFiles  bool   `json:"leftoverFiles"`
}

// Action classifies the outcome of an install run.
type Action string

const (
	ActionInstalled Action = "installed"
	ActionSkipped   Action = "skipped"
	ActionFailed    Action = "failed"
)

// InstallResult captures the outcome of one orchestrated install run.
type InstallResult struct {
	RunID        string `json:"runId"`
	Success      bool   `json:"success"`
	Action       Action `json:"action"`
	Version      string `json:"version,omitempty"`
	IsBackported bool   `json:"isBackported"`
	Message      string `json:"message"`
}

// State names the steps of the install pipeline.
type State string

const (
	StateIdle              State = "idle"
	StateChecking          State = "checking"
	StateDownloading       State = "downloading"
	StateVerifying         State = "verifying"
	StateExtracting        State = "extracting"
	StateInstalling        State = "installing"
	StateRestartingService State = "restarting_service"
	StateRestartingAgent   State = "restarting_agent"
	StateCleaningUp        State = "cleaning_up"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// ValidationResult is the outcome of a dry-run archive check.
type ValidationResult struct {
	Valid       bool     `json:"valid"`
	Reason      string   `json:"reason,omitempty"`
	ArchiveSize int64    `json:"archiveSize,omitempty"`
	FileCount   int      `json:"fileCount,omitempty"`
	DebFiles    []string `json:"debFiles,omitempty"`
}
