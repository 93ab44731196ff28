package generator

import (
	"context"
	"sync"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"google.golang.org/genai"
)

// --- Mocks ---

// generateCall は GenerateContent に渡された引数の記録なのだ。
type generateCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type mockModels struct {
	mu    sync.Mutex
	calls []generateCall
	resp  *genai.GenerateContentResponse
	err   error
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, generateCall{model: model, contents: contents, config: config})
	return m.resp, m.err
}

func (m *mockModels) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockFactory は渡されたキーを記録してモックを返すのだ。
type mockFactory struct {
	models      *mockModels
	err         error
	credentials []domain.Credential
}

func (f *mockFactory) factory() ClientFactory {
	return func(ctx context.Context, credential domain.Credential) (ContentGenerator, error) {
		f.credentials = append(f.credentials, credential)
		if f.err != nil {
			return nil, f.err
		}
		return f.models, nil
	}
}

func imageResponse(mimeType string, data []byte) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			FinishReason: genai.FinishReasonStop,
			Content: &genai.Content{
				Parts: []*genai.Part{
					{Text: "Here is the outfit."},
					{InlineData: &genai.Blob{MIMEType: mimeType, Data: data}},
				},
			},
		}},
	}
}
