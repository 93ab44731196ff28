package generator

import (
	"context"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"google.golang.org/genai"
)

// Compositor は人物画像と衣服画像を合成するための統合窓口です。
type Compositor interface {
	// Compose は1回だけ外部サービスへリクエストし、合成画像を返します。
	// 応答に画像が含まれない場合は (nil, nil) を返します。
	Compose(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error)
}

// ContentGenerator は genai.Models のうち、このパッケージが使うメソッドだけを切り出したものです。
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// ClientFactory は API キーごとに ContentGenerator を生成します。
type ClientFactory func(ctx context.Context, credential domain.Credential) (ContentGenerator, error)
