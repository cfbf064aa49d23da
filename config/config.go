package config

import (
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	Server  ServerConfig  `json:"server"`
	Connect ConnectConfig `json:"connect"`
	Poll    PollConfig    `json:"poll"`
	Proxy   ProxyConfig   `json:"proxy"`
	Store   StoreConfig   `json:"store"`
}

type ServerConfig struct {
	SocketURL   string `json:"socket_url"`   // ws://host:port/ws
	APIBaseURL  string `json:"api_base_url"` // http://host:port
	ChannelPath string `json:"channel_path"` // 后端 WebSocket 路径
}

type ConnectConfig struct {
	BaseDelay   int `json:"base_delay"`   // 重连初始延迟（秒）
	MaxDelay    int `json:"max_delay"`    // 重连延迟上限（秒）
	MaxAttempts int `json:"max_attempts"` // 最大重连次数
	Cooldown    int `json:"cooldown"`     // 连接冷却时间（秒）
	Timeout     int `json:"timeout"`      // 单次连接超时（秒）
	AcceptWait  int `json:"accept_wait"`  // 接受会话确认等待窗口（秒）
}

type PollConfig struct {
	Interval int `json:"interval"` // REST 兜底轮询间隔（秒）
}

type ProxyConfig struct {
	Enabled bool   `json:"enabled"`
	Listen  string `json:"listen"` // 监听地址，如 :3000
	Target  string `json:"target"` // 后端地址，如 http://localhost:7001
}

type StoreConfig struct {
	CredentialFile string `json:"credential_file"` // 凭证保存路径
}

func LoadConfig() (config Config, err error) {
	file, err := os.Open("config/config.json")
	if err != nil {
		return config, err
	}
	defer func(file *os.File) {
		closeErr := file.Close()
		if closeErr != nil {
			log.Printf("Error closing config file: %v", closeErr)
		}
	}(file)
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&config)
	if err != nil {
		return config, err
	}
	config.ApplyDefaults()
	return config, nil
}

// 缺省值与原后端约定保持一致（端口 7001、重连上限 30 次等）
func (c *Config) ApplyDefaults() {
	if c.Server.SocketURL == "" {
		c.Server.SocketURL = "ws://localhost:7001/ws"
	}
	if c.Server.APIBaseURL == "" {
		c.Server.APIBaseURL = "http://localhost:7001"
	}
	if c.Server.ChannelPath == "" {
		c.Server.ChannelPath = "/ws"
	}
	if c.Connect.BaseDelay <= 0 {
		c.Connect.BaseDelay = 1
	}
	if c.Connect.MaxDelay <= 0 {
		c.Connect.MaxDelay = 30
	}
	if c.Connect.MaxAttempts <= 0 {
		c.Connect.MaxAttempts = 30
	}
	if c.Connect.Cooldown <= 0 {
		c.Connect.Cooldown = 3
	}
	if c.Connect.Timeout <= 0 {
		c.Connect.Timeout = 15
	}
	if c.Connect.AcceptWait <= 0 {
		c.Connect.AcceptWait = 10
	}
	if c.Poll.Interval <= 0 {
		c.Poll.Interval = 30
	}
	if c.Store.CredentialFile == "" {
		c.Store.CredentialFile = "credential.json"
	}
}
