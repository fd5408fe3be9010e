package protocol

// HTTP routes served by the gateway.
const (
	// LINE
	RouteLineWebhook      = "/webhook/line"
	RouteLineWebhookAlias = "/api/line/webhook"
	RouteLinePushSeq      = "/api/line/push-seq"

	// Hive
	RouteHiveStart  = "/api/hive/start"
	RouteHiveStatus = "/api/hive/status"
	RouteHiveRun    = "/api/hive/run"

	// Health
	RouteHealth      = "/health"
	RouteAgentHealth = "/api/agents/{name}/health"
)

// HiveRunRequest is the body of POST /api/hive/run.
type HiveRunRequest struct {
	GroupID string `json:"groupId"`
	Title   string `json:"title,omitempty"`
	Rounds  int    `json:"rounds,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
}

// PushSeqRequest is the body of POST /api/line/push-seq. Either AccessToken or
// Destination (a configured channel) selects the bot.
type PushSeqRequest struct {
	AccessToken string   `json:"accessToken,omitempty"`
	Destination string   `json:"destination,omitempty"`
	To          string   `json:"to"`
	Lines       []string `json:"lines"`
	DelayMS     *int     `json:"delayMs,omitempty"`
}

// Push sequence limits.
const (
	PushSeqMaxLines     = 15
	PushSeqMaxLineRunes = 1900
	PushSeqFirstDelayMS = 200
	PushSeqDelayMS      = 900
	PushSeqMaxDelayMS   = 10000
)
