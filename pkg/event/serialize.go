package event

import (
	"encoding/json"
	"fmt"
)

// Encode はイベントデータをJSON形式にシリアライズする。
func Encode(data any) ([]byte, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}
	return b, nil
}

// Decode はJSON形式のイベントデータを指定された型にデシリアライズする。
func Decode[T any](b []byte) (*T, error) {
	var data T
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
