package client

import (
	"context"
	"time"

	"LiteChat/api"
	"LiteChat/config"
	"LiteChat/connection"
	"LiteChat/events"
	"LiteChat/models"
	"LiteChat/reconcile"
	"LiteChat/store"

	"github.com/labstack/gommon/log"
)

// Client 组装整个实时客户端：连接管理、事件路由、会话协调、
// REST 兜底轮询和凭据持久化
type Client struct {
	Config     *config.Config
	Router     *events.Router
	Manager    *connection.Manager
	Reconciler *reconcile.Reconciler
	API        *api.Client
	Poller     *api.Poller
	Store      *store.CredentialStore
}

func NewClient(cfg *config.Config) *Client {
	router := events.NewRouter()
	manager := connection.NewManager(cfg.Server.SocketURL, cfg.Connect, router)
	identity := manager.Identity()

	apiClient := api.NewClient(cfg.Server.APIBaseURL, identity.Token)
	reconciler := reconcile.NewReconciler(manager, identity, time.Duration(cfg.Connect.AcceptWait)*time.Second)
	reconciler.Attach(router)
	poller := api.NewPoller(apiClient, reconciler, time.Duration(cfg.Poll.Interval)*time.Second, identity.IsAgent)
	credStore := store.NewCredentialStore(cfg.Store.CredentialFile)

	c := &Client{
		Config:     cfg,
		Router:     router,
		Manager:    manager,
		Reconciler: reconciler,
		API:        apiClient,
		Poller:     poller,
		Store:      credStore,
	}
	c.setupHandlers()
	return c
}

func (c *Client) setupHandlers() {
	// 登录确认：落盘凭据并恢复断线前的会话
	c.Router.On(models.EvLoginSuccess, func(models.Event) {
		identity := c.Manager.Identity()
		cred := store.Credential{
			Token:    identity.Token(),
			UserType: string(identity.UserType()),
			UserID:   identity.UserID(),
		}
		if err := c.Store.Save(cred); err != nil {
			log.Warnf("save credential failed: %v", err)
		}
		go c.restoreSessions()
	})

	// 登录失败说明令牌失效，重连也救不回来，必须重新认证
	c.Router.On(models.EvLoginError, func(e models.Event) {
		ev, _ := e.(models.LoginErrorEvent)
		log.Warnf("login rejected: %s, re-authentication required", ev.Message)
		c.Manager.Disconnect()
		if err := c.Store.Clear(); err != nil {
			log.Warnf("clear credential failed: %v", err)
		}
	})

	// 握手层认证失败同样清理凭据
	c.Router.On(models.EvConnectError, func(e models.Event) {
		ev, ok := e.(models.ConnectErrorEvent)
		if !ok || ev.Kind != models.ConnectErrAuth {
			return
		}
		log.Warnf("connection rejected by server: %s", ev.Reason)
		if err := c.Store.Clear(); err != nil {
			log.Warnf("clear credential failed: %v", err)
		}
	})

	c.Router.On(models.EvDisconnect, func(e models.Event) {
		ev, _ := e.(models.DisconnectedEvent)
		if ev.Intentional {
			log.Infof("disconnected: %s", ev.Reason)
		} else {
			log.Warnf("connection lost: %s", ev.Reason)
		}
	})
}

// restoreSessions 登录后拉取权威会话列表，重新加入活跃会话的房间
func (c *Client) restoreSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	sessions, err := c.API.MySessions(ctx)
	if err != nil {
		log.Warnf("restore sessions failed: %v", err)
		c.Poller.Resync()
		return
	}
	c.Reconciler.ApplySessionsSnapshot(sessions)
	for _, s := range sessions {
		if s.Status == models.SessionActive {
			c.Manager.JoinRoom(s.SessionID)
		}
	}
	c.Poller.Resync()
}

// Login 用令牌建立连接并启动兜底轮询
func (c *Client) Login(token string) {
	c.Poller.Start(c.Router)
	c.Manager.Connect(token, true)
}

// Resume 尝试用落盘凭据自动登录；没有可用凭据时返回 false
func (c *Client) Resume() bool {
	cred, ok := c.Store.Load()
	if !ok {
		return false
	}
	log.Infof("resuming session for %s %d", cred.UserType, cred.UserID)
	c.Login(cred.Token)
	return true
}

// Logout 主动断开、停止轮询并清除凭据
func (c *Client) Logout() {
	c.Poller.Stop(c.Router)
	c.Manager.Disconnect()
	if err := c.Store.Clear(); err != nil {
		log.Warnf("clear credential failed: %v", err)
	}
}
