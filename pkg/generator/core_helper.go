package generator

import (
	"fmt"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
	"google.golang.org/genai"
)

// toPart はエンコード済み画像を genai.Part (InlineData) に変換します。
func toPart(img domain.EncodedImage) (*genai.Part, error) {
	data, err := imgutil.Decode(img.Data)
	if err != nil {
		return nil, err
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: img.MimeType, Data: data}}, nil
}

// parseToResponse は最初の候補から、InlineData を持つ最初のパーツを探します。
// 画像が無いこと自体はエラーにしません（呼び出し側で「表示するものなし」として扱う）。
func (c *GeminiImageCore) parseToResponse(resp *genai.GenerateContentResponse, seed int64) (*ImageOutput, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: Geminiからの応答が空です", domain.ErrServiceFailed)
	}

	out := &ImageOutput{UsedSeed: seed}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil {
			out.FinishReason = string(resp.PromptFeedback.BlockReason)
		}
		return out, nil
	}

	candidate := resp.Candidates[0]
	out.FinishReason = string(candidate.FinishReason)
	if candidate.Content == nil {
		return out, nil
	}

	for _, part := range candidate.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			out.Data = part.InlineData.Data
			out.MimeType = part.InlineData.MIMEType
			return out, nil
		}
	}
	return out, nil
}

// classifyError は通信エラーをドメインのエラー種別でラップします。
func classifyError(err error) error {
	if isQuotaError(err) {
		return fmt.Errorf("%w: %w: %w", domain.ErrServiceFailed, domain.ErrServiceBusy, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrServiceFailed, err)
}
