package generator

import (
	"context"
	"fmt"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"google.golang.org/genai"
)

// NewGenAIClientFactory はユーザーの API キーで Gemini API クライアントを生成するファクトリを返します。
// キーはセッションごとに異なるため、クライアントはリクエストのたびに作り直します。
func NewGenAIClientFactory() ClientFactory {
	return func(ctx context.Context, credential domain.Credential) (ContentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  credential.Reveal(),
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create GenAI client: %w", err)
		}
		return client.Models, nil
	}
}
