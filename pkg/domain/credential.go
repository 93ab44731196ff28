package domain

import "log/slog"

const maskedCredential = "****"

// Credential はユーザーがセッションごとに入力する API キーです。
// メモリ上にのみ保持し、ログや文字列化ではマスクされます。
type Credential string

// IsZero はキーが未入力かどうかを返します。
func (c Credential) IsZero() bool {
	return c == ""
}

// Reveal は生のキーを返します。genai クライアント生成時にのみ使用します。
func (c Credential) Reveal() string {
	return string(c)
}

func (c Credential) String() string {
	if c.IsZero() {
		return ""
	}
	return maskedCredential
}

// LogValue は slog 出力時にキーをマスクします。
func (c Credential) LogValue() slog.Value {
	return slog.StringValue(c.String())
}
