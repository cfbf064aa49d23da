package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/gommon/log"

	"LiteChat/client"
	"LiteChat/config"
	"LiteChat/proxy"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Warnf("load config failed, using defaults: %v", err)
		cfg.ApplyDefaults()
	}

	if cfg.Proxy.Enabled {
		p, err := proxy.New(cfg.Proxy, cfg.Server.ChannelPath)
		if err != nil {
			log.Fatal("invalid proxy target:", err)
		}
		go func() {
			if err := p.Start(); err != nil {
				log.Fatal("dev proxy stopped:", err)
			}
		}()
	}

	c := client.NewClient(&cfg)
	if token := os.Getenv("CHAT_TOKEN"); token != "" {
		c.Login(token)
	} else if !c.Resume() {
		log.Warn("no stored credential, set CHAT_TOKEN to log in")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	c.Logout()
}
