package event

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingName はイベント名の無いメッセージを受け取ったことを表す。
var ErrMissingName = errors.New("イベント名がありません")

// Envelope は接続上でやり取りする1メッセージ。
type Envelope struct {
	// Event はイベント名。
	Event Name `json:"event"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data,omitempty"`
}

// New は新しいEnvelopeを生成する。dataはJSON形式にシリアライズされる。
func New(name Name, data any) (*Envelope, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	return &Envelope{Event: name, Data: jsonData}, nil
}

// Parse は受信したメッセージをEnvelopeにデシリアライズする。
func Parse(raw []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("メッセージのデシリアライズに失敗: %w", err)
	}
	if e.Event == "" {
		return nil, ErrMissingName
	}
	return &e, nil
}

// DecodeData はEnvelopeのDataフィールドを指定された型にデシリアライズする。
// データが省略されている場合はゼロ値を返す。
func DecodeData[T any](e *Envelope) (*T, error) {
	var data T
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return &data, nil
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
