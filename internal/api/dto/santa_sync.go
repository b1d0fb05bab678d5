package dto

// Wire types for the Santa sync protocol. Field names follow the agent's
// JSON, not ours.

type PreflightRequest struct {
	SerialNumber string `json:"serial_num"`
	Hostname     string `json:"primary_user"`
	OSVersion    string `json:"os_version"`
	OSBuild      string `json:"os_build"`
	AgentVersion string `json:"santa_version"`
	ClientMode   string `json:"client_mode"`
	ModelID      string `json:"model_identifier"`
}

type PreflightResponse struct {
	ClientMode            string `json:"client_mode"`
	BatchSize             int    `json:"batch_size"`
	UploadLogsURL         string `json:"upload_logs_url"`
	CleanSync             bool   `json:"clean_sync"`
	EnableBundles         bool   `json:"enable_bundles"`
	EnableTransitiveRules bool   `json:"enable_transitive_rules"`
	BlockedPathRegex      string `json:"blocked_path_regex"`
	AllowedPathRegex      string `json:"allowed_path_regex"`
	EnableAllEventUpload  bool   `json:"enable_all_event_upload"`
}

type SantaEvent struct {
	FileSHA256        string  `json:"file_sha256"`
	FilePath          string  `json:"file_path"`
	Decision          string  `json:"decision"`
	ExecutingUser     string  `json:"executing_user"`
	ExecutionTime     float64 `json:"execution_time"`
	CertificateSHA256 string  `json:"signing_chain_cert_sha256,omitempty"`
	CertificateCN     string  `json:"signing_chain_cert_cn,omitempty"`
	SigningID         string  `json:"signing_id,omitempty"`
	TeamID            string  `json:"team_id,omitempty"`
	CDHash            string  `json:"cdhash,omitempty"`
	BundleID          string  `json:"file_bundle_id,omitempty"`
	BundleName        string  `json:"file_bundle_name,omitempty"`
	BundlePath        string  `json:"file_bundle_path,omitempty"`
}

type EventUploadRequest struct {
	Events []SantaEvent `json:"events"`
}

type EventUploadResponse struct {
	EventUploadBundleBinaries []string `json:"event_upload_bundle_binaries"`
}

type RuleDownloadRequest struct {
	Cursor string `json:"cursor,omitempty"`
}

type SantaRule struct {
	Identifier    string `json:"identifier"`
	Policy        string `json:"policy"`
	RuleType      string `json:"rule_type"`
	CustomMessage string `json:"custom_msg,omitempty"`
}

type RuleDownloadResponse struct {
	Rules  []SantaRule `json:"rules"`
	Cursor string      `json:"cursor,omitempty"`
}
