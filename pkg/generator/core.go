package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"google.golang.org/genai"
)

// GeminiImageCore はクライアント生成・通信・レスポンス解析を担う基盤クラスです。
type GeminiImageCore struct {
	newClient ClientFactory
	model     string
	now       func() time.Time
}

// NewGeminiImageCore は依存関係を注入して GeminiImageCore を初期化します。
func NewGeminiImageCore(newClient ClientFactory, model string) (*GeminiImageCore, error) {
	if newClient == nil {
		return nil, fmt.Errorf("newClient is required")
	}
	if model == "" {
		model = DefaultModel
	}

	return &GeminiImageCore{
		newClient: newClient,
		model:     model,
		now:       time.Now,
	}, nil
}

// Model は使用するモデル名を返します。
func (c *GeminiImageCore) Model() string {
	return c.model
}

// executeRequest はパーツを1つのユーザーコンテンツにまとめて送信し、最初の画像を取り出します。
func (c *GeminiImageCore) executeRequest(ctx context.Context, credential domain.Credential, parts []*genai.Part, seed *int64) (*domain.GenerationResult, error) {
	client, err := c.newClient(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrServiceFailed, err)
	}

	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	sentSeed := seedToPtrInt32(seed)
	config := &genai.GenerateContentConfig{Seed: sentSeed}

	resp, err := client.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return nil, classifyError(err)
	}

	out, err := c.parseToResponse(resp, dereferenceSeed(sentSeed))
	if err != nil {
		return nil, err
	}

	if !out.Found() {
		slog.WarnContext(ctx, "レスポンスに画像データが含まれていませんでした", "model", c.model, "finish_reason", out.FinishReason)
		return nil, nil
	}

	mimeType := out.MimeType
	if mimeType == "" {
		mimeType = defaultResultMimeType
	}

	return &domain.GenerationResult{
		Image: domain.EncodedImage{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(out.Data),
		},
		UsedSeed:     out.UsedSeed,
		FinishReason: out.FinishReason,
		CreatedAt:    c.now(),
	}, nil
}
