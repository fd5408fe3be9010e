package protocol

// Webhook response warnings. The webhook always answers 200 so LINE does not
// retry; the outcome is carried in the body.
const (
	WarnChannelNotConfigured = "channel not configured"
	WarnChannelDisabled      = "channel disabled"
	WarnQueueFull            = "queue full"
)

// WebhookResponse is the body of every webhook answer.
type WebhookResponse struct {
	OK      bool   `json:"ok"`
	Queued  int    `json:"queued,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
	Warn    string `json:"warn,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AgentHealth is the persona part of GET /api/agents/{name}/health.
type AgentHealth struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Model           string   `json:"model,omitempty"`
	TrainingVersion string   `json:"tp_version"`
	Tools           []string `json:"tools"`
	Models          []string `json:"models"`
}

// HealthSample is the sample row reported by GET /health.
type HealthSample struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	TrainingVersion string `json:"core_version"`
}
