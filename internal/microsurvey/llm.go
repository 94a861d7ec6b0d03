package microsurvey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/movesmart/maas-backend/pkg/config"
	"github.com/movesmart/maas-backend/pkg/httpclient"
)

const llmTimeout = 15 * time.Second

// LLMProposer asks a chat-completion model for the best nudge time.
type LLMProposer struct {
	client *httpclient.Client
	apiKey string
	model  string
}

// NewLLMProposer builds a proposer from the survey config.
func NewLLMProposer(cfg config.SurveyConfig) *LLMProposer {
	return &LLMProposer{
		client: httpclient.NewClient(cfg.LLMBaseURL, llmTimeout, httpclient.WithDefaultRetry()),
		apiKey: cfg.LLMAPIKey,
		model:  cfg.LLMModel,
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ProposePushTime asks the model for an RFC 3339 instant. The caller
// validates the result; this method only parses it.
func (p *LLMProposer) ProposePushTime(ctx context.Context, userID int64, now time.Time, loc *time.Location) (time.Time, error) {
	prompt := fmt.Sprintf(
		"Current time is %s in timezone %s. Suggest the best time to send a survey reminder "+
			"to a commuter. It must be at least 30 minutes from now and between 07:00 and 22:30 "+
			"local time. Reply with only an RFC 3339 timestamp.",
		now.In(loc).Format(time.RFC3339), loc.String(),
	)

	req := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You schedule push notifications. Reply with a single RFC 3339 timestamp and nothing else."},
			{Role: "user", Content: prompt},
		},
	}

	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	body, err := p.client.Post(ctx, "/v1/chat/completions", req, headers)
	if err != nil {
		return time.Time{}, fmt.Errorf("llm request: %w", err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return time.Time{}, fmt.Errorf("llm response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return time.Time{}, fmt.Errorf("llm response: no choices")
	}

	raw := strings.TrimSpace(resp.Choices[0].Message.Content)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("llm timestamp %q: %w", raw, err)
	}
	return t, nil
}
