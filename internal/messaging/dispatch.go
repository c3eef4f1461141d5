package messaging

import (
	"context"
	"errors"
	"fmt"
)

// Handler 消费者回调；返回 error 表示该投递无法处理（进入死信，不重试），
// 用 Retry 包装的 error 例外：消息重新入队
type Handler func(ctx context.Context, msg Message) error

// ErrRetryable 暂时性失败（锁繁忙、处理被中断），消息应重新入队而不是进入死信
var ErrRetryable = errors.New("暂时性失败，消息将重新投递")

// Retry 将 err 标记为可重试，errors.Is 对原 err 仍然成立
func Retry(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRetryable, err)
}

// RequestHandler 处理 ValidationRequest
type RequestHandler interface {
	HandleRequest(ctx context.Context, req ValidationRequest) error
}

// VerdictHandler 处理 ValidationVerdict
type VerdictHandler interface {
	HandleVerdict(ctx context.Context, v ValidationVerdict) error
}

// Dispatcher 消息分发表，每个消息变体对应一个处理器；未注册的变体返回错误
type Dispatcher struct {
	requests RequestHandler
	verdicts VerdictHandler
}

// NewDispatcher 创建分发表；某一端不消费的变体传 nil
func NewDispatcher(requests RequestHandler, verdicts VerdictHandler) *Dispatcher {
	return &Dispatcher{requests: requests, verdicts: verdicts}
}

// Keys 返回需要订阅的路由键
func (d *Dispatcher) Keys() []RoutingKey {
	var keys []RoutingKey
	if d.requests != nil {
		keys = append(keys, RoutingValidateEmployee)
	}
	if d.verdicts != nil {
		keys = append(keys, RoutingEmployeeValidated, RoutingEmployeeRejected)
	}
	return keys
}

// Dispatch 按消息类型分发
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) error {
	switch m := msg.(type) {
	case ValidationRequest:
		if d.requests == nil {
			return fmt.Errorf("%w: 本服务不处理 %s", ErrUnknownRoutingKey, m.RoutingKey())
		}
		return d.requests.HandleRequest(ctx, m)
	case ValidationVerdict:
		if d.verdicts == nil {
			return fmt.Errorf("%w: 本服务不处理 %s", ErrUnknownRoutingKey, m.RoutingKey())
		}
		return d.verdicts.HandleVerdict(ctx, m)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownRoutingKey, msg)
	}
}

// Handler 作为消费者回调使用
func (d *Dispatcher) Handler() Handler {
	return d.Dispatch
}
