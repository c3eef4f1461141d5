package messaging

import "context"

// Publisher 发布消息（fire-and-forget，不等待对端处理）
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Subscriber 订阅若干路由键，阻塞直到 ctx 取消或连接中断
type Subscriber interface {
	Subscribe(ctx context.Context, keys []RoutingKey, h Handler) error
}

// Broker 同时具备发布与订阅能力
type Broker interface {
	Publisher
	Subscriber
	Close() error
}
