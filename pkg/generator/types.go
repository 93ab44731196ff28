package generator

const (
	// DefaultModel は試着画像の生成に使う Gemini モデルです。
	DefaultModel = "gemini-2.5-flash-image-preview"

	// FittingPrompt は毎回固定で送る指示文です。1枚目が人物、2枚目が衣服である前提です。
	FittingPrompt = "Generate an image of the person in the first image wearing the costume from the second image. " +
		"Preserve the person's features, pose, and proportions, and blend the costume naturally and realistically onto them."

	defaultResultMimeType = "image/png"
)

// ImageOutput は Core の内部解析結果
// Data が空の場合、レスポンスに画像パーツが無かったことを表します。
type ImageOutput struct {
	Data         []byte
	MimeType     string
	UsedSeed     int64
	FinishReason string
}

// Found は画像が見つかったかどうかを返します。
func (o *ImageOutput) Found() bool {
	return o != nil && len(o.Data) > 0
}
