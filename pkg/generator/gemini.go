package generator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"google.golang.org/genai"
)

// GeminiGenerator は人物画像と衣服画像から試着画像を生成する Compositor 実装です。
type GeminiGenerator struct {
	imgCore *GeminiImageCore
	prompt  string
}

// NewGeminiGenerator は GeminiGenerator を初期化するのだ。
func NewGeminiGenerator(core *GeminiImageCore) (*GeminiGenerator, error) {
	if core == nil {
		return nil, fmt.Errorf("core (GeminiImageCore) is required")
	}

	return &GeminiGenerator{
		imgCore: core,
		prompt:  FittingPrompt,
	}, nil
}

// Compose は指示文・人物画像・衣服画像の順でパーツを組み立て、1回だけリクエストするのだ。
func (g *GeminiGenerator) Compose(ctx context.Context, req domain.CompositeRequest) (*domain.GenerationResult, error) {
	if req.Credential.IsZero() || req.Subject.Data == "" || req.Garment.Data == "" {
		return nil, domain.ErrMissingInput
	}

	subjectPart, err := toPart(req.Subject)
	if err != nil {
		return nil, fmt.Errorf("人物画像の変換に失敗しました: %w", err)
	}
	garmentPart, err := toPart(req.Garment)
	if err != nil {
		return nil, fmt.Errorf("衣服画像の変換に失敗しました: %w", err)
	}

	parts := []*genai.Part{
		{Text: g.prompt},
		subjectPart,
		garmentPart,
	}

	slog.InfoContext(ctx, "Geminiに試着画像の生成をリクエストします",
		"model", g.imgCore.Model(),
		"subject_mime", req.Subject.MimeType,
		"garment_mime", req.Garment.MimeType,
	)

	return g.imgCore.executeRequest(ctx, req.Credential, parts, req.Seed)
}
