package events

import (
	"encoding/json"
	"fmt"

	"LiteChat/models"
)

// Decode 把 {"type": ..., "payload": ...} 信封解码成封闭联合中的具体事件类型。
// 未知事件名返回错误，由调用方记录后丢弃，不中断读取循环
func Decode(event string, payload json.RawMessage) (models.Event, error) {
	var e models.Event
	switch event {
	case models.EvLoginSuccess:
		e = &models.LoginSuccessEvent{}
	case models.EvLoginError:
		e = &models.LoginErrorEvent{}
	case models.EvSessionStarted:
		e = &models.SessionStartedEvent{}
	case models.EvSessionAccepted:
		e = &models.SessionAcceptedEvent{}
	case models.EvSessionTaken:
		e = &models.SessionTakenEvent{}
	case models.EvSessionCancelled:
		e = &models.SessionCancelledEvent{}
	case models.EvSessionRejected:
		e = &models.SessionRejectedEvent{}
	case models.EvSessionEnded:
		e = &models.SessionEndedEvent{}
	case models.EvNewWaitingUser:
		e = &models.NewWaitingUserEvent{}
	case models.EvNewMessage:
		e = &models.NewMessageEvent{}
	case models.EvAgentOnline:
		e = &models.AgentOnlineEvent{}
	case models.EvAgentOffline:
		e = &models.AgentOfflineEvent{}
	case models.EvStatusUpdated:
		e = &models.StatusUpdatedEvent{}
	case models.EvError:
		e = &models.ErrorEvent{}
	default:
		return nil, fmt.Errorf("unknown event %q", event)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, e); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", event, err)
		}
	}
	return deref(e), nil
}

// deref 返回值类型，保证处理器里的类型断言统一用非指针形式
func deref(e models.Event) models.Event {
	switch v := e.(type) {
	case *models.LoginSuccessEvent:
		return *v
	case *models.LoginErrorEvent:
		return *v
	case *models.SessionStartedEvent:
		return *v
	case *models.SessionAcceptedEvent:
		return *v
	case *models.SessionTakenEvent:
		return *v
	case *models.SessionCancelledEvent:
		return *v
	case *models.SessionRejectedEvent:
		return *v
	case *models.SessionEndedEvent:
		return *v
	case *models.NewWaitingUserEvent:
		return *v
	case *models.NewMessageEvent:
		return *v
	case *models.AgentOnlineEvent:
		return *v
	case *models.AgentOfflineEvent:
		return *v
	case *models.StatusUpdatedEvent:
		return *v
	case *models.ErrorEvent:
		return *v
	}
	return e
}
