package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Timestamp はクライアントが送る日時。RFC 3339形式の文字列かunixミリ秒の数値を受け付ける。
// nullや省略時はゼロ値になる。
type Timestamp struct {
	time.Time
}

// UnmarshalJSON は文字列と数値の両方の形式を解釈する。
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("日時のデシリアライズに失敗: %w", err)
		}
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("日時の解析に失敗: %w", err)
		}
		ts.Time = t
		return nil
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("日時の解析に失敗: %w", err)
	}
	ts.Time = time.UnixMilli(ms)
	return nil
}
