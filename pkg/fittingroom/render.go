package fittingroom

import (
	"github.com/shouni/gemini-fitting-room/pkg/domain"
	"github.com/shouni/gemini-fitting-room/pkg/imgutil"
)

// PanelKind はパネルに表示する内容の種類です。
type PanelKind string

const (
	PanelGenerating     PanelKind = "generating"
	PanelResult         PanelKind = "result"
	PanelSubjectPreview PanelKind = "subject_preview"
	PanelGarmentPreview PanelKind = "garment_preview"
	PanelPlaceholder    PanelKind = "placeholder"
)

const (
	TextGenerating         = "Generating outfit..."
	TextSubjectPlaceholder = "Upload your photo to see here"
	TextGarmentPlaceholder = "Upload clothing to display here"
	LabelTryOn             = "Try On Outfit"
	LabelProcessing        = "Processing..."
)

// Panel は1つの表示領域の内容です。
type Panel struct {
	Kind     PanelKind `json:"kind"`
	ImageRef string    `json:"image_ref,omitempty"`
	Text     string    `json:"text,omitempty"`
}

// ImageInfo はアップロード済み画像のメタデータです。
type ImageInfo struct {
	FileName   string `json:"file_name"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Version    int    `json:"version"`
	PreviewRef string `json:"preview_ref"`
}

// View は画面の描画に必要な情報一式です。
type View struct {
	Stage         Stage      `json:"stage"`
	Phase         string     `json:"phase"`
	Mirror        Panel      `json:"mirror"`
	Rack          Panel      `json:"rack"`
	Notice        string     `json:"notice,omitempty"`
	CredentialSet bool       `json:"credential_set"`
	CanGenerate   bool       `json:"can_generate"`
	ButtonLabel   string     `json:"button_label"`
	Subject       *ImageInfo `json:"subject,omitempty"`
	Garment       *ImageInfo `json:"garment,omitempty"`
}

// ResultRefFunc は生成結果の表示用参照を組み立てます。
type ResultRefFunc func(res *domain.GenerationResult) string

// DataURIResultRef は結果を data URI として埋め込みます。
func DataURIResultRef(res *domain.GenerationResult) string {
	return imgutil.DataURI(res.Image.MimeType, res.Image.Data)
}

// Render は State から View を導出します。State は変更しません。
// ミラー側の優先順位は 生成中 > 結果 > 人物プレビュー > プレースホルダー です。
func Render(s State, resultRef ResultRefFunc) View {
	if resultRef == nil {
		resultRef = DataURIResultRef
	}

	v := View{
		Stage:         s.Stage(),
		Phase:         s.Phase.String(),
		Mirror:        mirrorPanel(s, resultRef),
		Rack:          rackPanel(s),
		Notice:        s.Notice,
		CredentialSet: !s.Credential.IsZero(),
		CanGenerate:   s.Phase == domain.PhaseIdle && s.Ready(),
		ButtonLabel:   LabelTryOn,
		Subject:       imageInfo(s.Subject),
		Garment:       imageInfo(s.Garment),
	}
	if s.Phase == domain.PhaseGenerating {
		v.ButtonLabel = LabelProcessing
	}
	return v
}

func mirrorPanel(s State, resultRef ResultRefFunc) Panel {
	switch {
	case s.Phase == domain.PhaseGenerating:
		return Panel{Kind: PanelGenerating, Text: TextGenerating}
	case s.Result != nil:
		return Panel{Kind: PanelResult, ImageRef: resultRef(s.Result)}
	case s.Subject != nil:
		return Panel{Kind: PanelSubjectPreview, ImageRef: s.Subject.PreviewRef}
	}
	return Panel{Kind: PanelPlaceholder, Text: TextSubjectPlaceholder}
}

// rackPanel は Phase に関係なく衣服のプレビューを出します。
func rackPanel(s State) Panel {
	if s.Garment != nil {
		return Panel{Kind: PanelGarmentPreview, ImageRef: s.Garment.PreviewRef}
	}
	return Panel{Kind: PanelPlaceholder, Text: TextGarmentPlaceholder}
}

func imageInfo(img *domain.UploadedImage) *ImageInfo {
	if img == nil {
		return nil
	}
	return &ImageInfo{
		FileName:   img.FileName,
		MimeType:   img.MimeType,
		Size:       img.Size,
		Version:    img.Version,
		PreviewRef: img.PreviewRef,
	}
}
