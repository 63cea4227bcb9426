// Package promptfilter screens user background prompts before they are
// forwarded to generation providers.
package promptfilter

import (
	"context"

	"github.com/sashabaranov/go-openai"

	"github.com/clearcut-studio/studio-server/internal/config"
)

type ResponseType string

const (
	ResponseTypeApproved ResponseType = "approved"
	ResponseTypeRejected ResponseType = "rejected"
)

type Response struct {
	Type   ResponseType `json:"status"`
	Reason string       `json:"reason,omitempty"`
}

// Filter runs prompts through the OpenAI moderation endpoint. With no
// API key configured the filter is disabled and everything is approved.
type Filter struct {
	client *openai.Client
}

func New(cfg *config.Config) *Filter {
	if cfg == nil || cfg.OpenAI == nil || cfg.OpenAI.APIKey == "" {
		return &Filter{}
	}

	return &Filter{client: openai.NewClient(cfg.OpenAI.APIKey)}
}

func (f *Filter) Enabled() bool { return f.client != nil }

func (f *Filter) Check(ctx context.Context, prompt string) (*Response, error) {
	if f.client == nil || prompt == "" {
		return &Response{Type: ResponseTypeApproved}, nil
	}

	res, err := f.client.Moderations(ctx, openai.ModerationRequest{
		Model: openai.ModerationOmniLatest,
		Input: prompt,
	})
	if err != nil {
		return nil, err
	}

	for _, result := range res.Results {
		if result.Flagged {
			return &Response{
				Type:   ResponseTypeRejected,
				Reason: flaggedCategories(result.Categories),
			}, nil
		}
	}

	return &Response{Type: ResponseTypeApproved}, nil
}

func flaggedCategories(c openai.ResultCategories) string {
	switch {
	case c.Sexual, c.SexualMinors:
		return "sexual content"
	case c.Violence, c.ViolenceGraphic:
		return "violent content"
	case c.Hate, c.HateThreatening:
		return "hateful content"
	case c.SelfHarm:
		return "self-harm content"
	case c.Harassment, c.HarassmentThreatening:
		return "harassing content"
	default:
		return "disallowed content"
	}
}
