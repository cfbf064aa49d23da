package proxy

import (
	"net/url"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"LiteChat/config"
)

// Proxy 是本地开发代理：把 /api 和 WebSocket 路径转发到聊天后端，
// 让前端资源和后端接口共享同一个源，省掉跨域配置
type Proxy struct {
	Echo   *echo.Echo
	listen string
}

func New(cfg config.ProxyConfig, channelPath string) (*Proxy, error) {
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	balancer := middleware.NewRoundRobinBalancer([]*middleware.ProxyTarget{
		{URL: target},
	})
	// echo 的代理中间件原生支持 WebSocket 升级
	proxyMw := middleware.ProxyWithConfig(middleware.ProxyConfig{Balancer: balancer})
	e.Group("/api", proxyMw)
	e.Group(channelPath, proxyMw)

	return &Proxy{Echo: e, listen: cfg.Listen}, nil
}

// Start 阻塞监听
func (p *Proxy) Start() error {
	log.Infof("dev proxy listening on %s", p.listen)
	return p.Echo.Start(p.listen)
}
