package domain

// Phase はワークフローの大まかな状態です。
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseGenerating
)

func (p Phase) String() string {
	if p == PhaseGenerating {
		return "generating"
	}
	return "idle"
}
