package fittingroom

import (
	"fmt"

	"github.com/shouni/gemini-fitting-room/pkg/domain"
)

// Stage はワークフロー全体の状態です。State から導出されます。
type Stage string

const (
	StageEmpty        Stage = "empty"
	StageReadyPartial Stage = "ready_partial"
	StageReadyFull    Stage = "ready_full"
	StageGenerating   Stage = "generating"
	StageDone         Stage = "done"
	StageFailed       Stage = "failed"
)

// PreviewRefFunc はスロットとバージョンからプレビュー参照を組み立てます。
type PreviewRefFunc func(slot domain.Slot, version int) string

// DefaultPreviewRef は HTTP を介さない利用（CLI・テスト）向けのプレビュー参照です。
func DefaultPreviewRef(slot domain.Slot, version int) string {
	return fmt.Sprintf("preview://%s/%d", slot, version)
}

// State はワークフロー1件分の状態です。
// 値として受け渡し、遷移メソッドは変更後の State を返します（レシーバは変更しません）。
type State struct {
	Credential domain.Credential
	Subject    *domain.UploadedImage
	Garment    *domain.UploadedImage
	Result     *domain.GenerationResult
	Phase      domain.Phase
	Notice     string

	// 生成開始時点の入力バージョン。完了時に入力が差し替わっていれば結果を捨てる。
	pending [2]int
}

// Image は指定スロットの画像を返します。
func (s State) Image(slot domain.Slot) *domain.UploadedImage {
	switch slot {
	case domain.SlotSubject:
		return s.Subject
	case domain.SlotGarment:
		return s.Garment
	}
	return nil
}

// Ready は生成に必要な入力（API キーと2枚の画像）が揃っているかを返します。
func (s State) Ready() bool {
	return !s.Credential.IsZero() && s.Subject != nil && s.Garment != nil
}

// WithCredential は API キーを差し替えます。
func (s State) WithCredential(c domain.Credential) State {
	s.Credential = c
	return s
}

// WithImage は画像を差し替え、プレビュー参照を振り直し、前回の結果と通知を消します。
// nil または未知のスロットの場合は何もしません。
func (s State) WithImage(img *domain.UploadedImage, ref PreviewRefFunc) State {
	if img == nil {
		return s
	}
	if ref == nil {
		ref = DefaultPreviewRef
	}

	version := 1
	if prev := s.Image(img.Slot); prev != nil {
		version = prev.Version + 1
	}

	switch img.Slot {
	case domain.SlotSubject:
		s.Subject = img.WithPreview(version, ref(img.Slot, version))
	case domain.SlotGarment:
		s.Garment = img.WithPreview(version, ref(img.Slot, version))
	default:
		return s
	}

	s.Result = nil
	s.Notice = ""
	return s
}

// Begin は生成を開始できるか検証し、Generating に遷移した State を返します。
func (s State) Begin() (State, error) {
	if s.Phase == domain.PhaseGenerating {
		return s, domain.ErrGenerationInProgress
	}
	if !s.Ready() {
		return s, domain.ErrMissingInput
	}

	s.Phase = domain.PhaseGenerating
	s.Result = nil
	s.Notice = ""
	s.pending = s.inputVersions()
	return s, nil
}

// Settle は生成の完了（成功・画像なし・失敗）を反映し、必ず Idle に戻します。
// 生成中に画像が差し替えられていた場合は、結果もエラーも反映しません。
func (s State) Settle(result *domain.GenerationResult, err error) State {
	superseded := s.Superseded()
	s.Phase = domain.PhaseIdle
	s.Result = nil

	if superseded {
		return s
	}
	if err != nil {
		s.Notice = err.Error()
		return s
	}
	s.Result = result
	return s
}

// Superseded は生成中に入力画像が差し替えられたかどうかを返します。Idle では常に false です。
func (s State) Superseded() bool {
	return s.Phase == domain.PhaseGenerating && s.pending != s.inputVersions()
}

// Stage は現在の State からワークフローの状態を導出します。
func (s State) Stage() Stage {
	switch {
	case s.Phase == domain.PhaseGenerating:
		return StageGenerating
	case s.Result != nil:
		return StageDone
	case s.Notice != "":
		return StageFailed
	case s.Ready():
		return StageReadyFull
	case s.Subject != nil || s.Garment != nil:
		return StageReadyPartial
	}
	return StageEmpty
}

func (s State) inputVersions() [2]int {
	var v [2]int
	if s.Subject != nil {
		v[0] = s.Subject.Version
	}
	if s.Garment != nil {
		v[1] = s.Garment.Version
	}
	return v
}
