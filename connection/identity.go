package connection

import (
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"LiteChat/models"
)

type UserType string

const (
	UserTypeVisitor UserType = "user"
	UserTypeAgent   UserType = "customer_service"
)

// tokenClaims 与后端签发的 JWT 载荷字段对应
type tokenClaims struct {
	UserID   int64  `json:"user_id"`
	Type     string `json:"type"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity 把通道和一个逻辑身份（用户/客服 + 数字ID）绑定在一起，
// 重连后由连接管理器用它重新登录，调用方不需要重复登录调用
type Identity struct {
	mu       sync.Mutex
	userType UserType
	userID   int64
	username string
	token    string
}

// Bind 显式设置身份（登录成功事件回填）
func (b *Identity) Bind(userType UserType, userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userType = userType
	b.userID = userID
}

// SetToken 保存凭证，并尽量从 JWT 声明里解出身份。
// 这里不验签（密钥在服务端），只读声明，省掉一次网络往返；
// 已显式 Bind 过的身份不会被覆盖
func (b *Identity) SetToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.token = token

	claims := &tokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return
	}
	if b.userID == 0 && claims.UserID != 0 {
		b.userID = claims.UserID
	}
	if b.userType == "" {
		switch claims.Type {
		case string(UserTypeAgent):
			b.userType = UserTypeAgent
		case string(UserTypeVisitor):
			b.userType = UserTypeVisitor
		}
	}
	if b.username == "" {
		b.username = claims.Username
	}
}

func (b *Identity) Token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.token
}

func (b *Identity) UserType() UserType {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userType
}

func (b *Identity) UserID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userID
}

func (b *Identity) Username() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.username
}

// IsAgent 当前身份是否为客服
func (b *Identity) IsAgent() bool {
	return b.UserType() == UserTypeAgent
}

// loginFrame 生成重连后重新声明身份的登录帧
func (b *Identity) loginFrame() (frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.token == "" {
		return frame{}, false
	}
	payload := map[string]string{"token": b.token}
	if b.userType == UserTypeAgent {
		return frame{Type: models.OpAgentLogin, Payload: payload}, true
	}
	return frame{Type: models.OpUserLogin, Payload: payload}, true
}

// clear 登出时清空身份绑定
func (b *Identity) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.userType = ""
	b.userID = 0
	b.username = ""
	b.token = ""
}
