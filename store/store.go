package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Credential 是落盘的登录凭据，下次启动用它自动重连
type Credential struct {
	Token    string    `json:"token"`
	UserType string    `json:"user_type"`
	UserID   int64     `json:"user_id"`
	SavedAt  time.Time `json:"saved_at"`
}

// CredentialStore 把凭据持久化到单个 JSON 文件
type CredentialStore struct {
	path string
}

func NewCredentialStore(path string) *CredentialStore {
	if path == "" {
		path = "data/credential.json"
	}
	return &CredentialStore{path: path}
}

// Load 读取已保存的凭据；文件不存在或没有令牌时返回 false
func (s *CredentialStore) Load() (Credential, bool) {
	var c Credential
	data, err := os.ReadFile(s.path)
	if err != nil {
		return c, false
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, false
	}
	return c, c.Token != ""
}

// Save 写入凭据，文件权限收紧到本用户可读写
func (s *CredentialStore) Save(c Credential) error {
	if c.SavedAt.IsZero() {
		c.SavedAt = time.Now()
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	return os.WriteFile(s.path, data, 0o600)
}

// Clear 删除凭据文件。登录失败（令牌失效）时调用，避免无效令牌反复重试
func (s *CredentialStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
