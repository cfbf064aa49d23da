package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// SessionID 线上既可能是字符串也可能是数字，统一转成去除首尾空白的字符串，
// 避免数字/字符串形式不一致导致未读计数等按键去重失败
type SessionID string

func (s *SessionID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = SessionID(strings.TrimSpace(str))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*s = SessionID(n.String())
	return nil
}

func (s SessionID) String() string {
	return string(s)
}

// NormalizeSessionID 规范化会话ID（字符串化并去除空白）
func NormalizeSessionID(id string) string {
	return strings.TrimSpace(id)
}
