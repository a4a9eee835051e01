package domain

// TruncationMarker は切り詰めたことを示す末尾マーカー
const TruncationMarker = "... (truncated)"

// Truncate は文字列を指定された長さに切り詰め、マーカーを付与する
// DBカラムに保存する長大なエラーメッセージの抑制用
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + TruncationMarker
}
