package providers

import "context"

// EchoPrefix starts every EchoProvider answer.
const EchoPrefix = "ครับพ่อ รับแล้ว: "

// EchoProvider answers with the last user message. It stands in for a real
// provider when no API key is configured.
type EchoProvider struct{}

func NewEchoProvider() *EchoProvider { return &EchoProvider{} }

func (p *EchoProvider) Name() string         { return "echo" }
func (p *EchoProvider) DefaultModel() string { return "echo" }

func (p *EchoProvider) Chat(_ context.Context, req ChatRequest) (*ChatResponse, error) {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			last = req.Messages[i].Content
			break
		}
	}
	model := req.Model
	if model == "" {
		model = p.DefaultModel()
	}
	return &ChatResponse{
		Content:      EchoPrefix + last,
		Model:        model,
		FinishReason: "stop",
	}, nil
}
