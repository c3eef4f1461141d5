package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"staffclock/backend/config"
)

// ErrConnectionClosed RabbitMQ 连接或消费通道已断开
var ErrConnectionClosed = errors.New("RabbitMQ 连接或消费通道已断开")

// AMQPBroker 基于 RabbitMQ 的 Broker 实现。
// 拓扑：一个 direct 交换机，每个路由键绑定一个同名持久化队列；无法解析的投递进入死信队列。
type AMQPBroker struct {
	conn     *amqp.Connection
	exchange string
	prefetch int
	ttl      time.Duration
	logger   *zap.Logger

	handleTimeout time.Duration
	requeueDelay  time.Duration

	pubMu sync.Mutex
	pubCh *amqp.Channel
}

const (
	defaultHandleTimeout = 30 * time.Second
	defaultRequeueDelay  = 200 * time.Millisecond
)

// NewAMQPBroker 建立连接、声明拓扑
func NewAMQPBroker(cfg *config.BrokerConfig, logger *zap.Logger) (*AMQPBroker, error) {
	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: cfg.Heartbeat,
		Properties: amqp.Table{
			"connection_name": "staffclock",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}

	b := &AMQPBroker{
		conn:     conn,
		exchange: cfg.Exchange,
		prefetch: cfg.Prefetch,
		ttl:      cfg.MessageTTL,
		logger:   logger,

		handleTimeout: defaultHandleTimeout,
		requeueDelay:  defaultRequeueDelay,
	}
	if b.prefetch <= 0 {
		b.prefetch = 1
	}

	if err := b.declareTopology(); err != nil {
		conn.Close()
		return nil, err
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开发布通道失败: %w", err)
	}
	b.pubCh = pubCh

	logger.Info("RabbitMQ 连接成功", zap.String("exchange", cfg.Exchange))
	return b, nil
}

func (b *AMQPBroker) deadLetterExchange() string { return b.exchange + ".dead" }

func (b *AMQPBroker) declareTopology() error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("打开通道失败: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(b.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明交换机失败: %w", err)
	}
	if err := ch.ExchangeDeclare(b.deadLetterExchange(), amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明死信交换机失败: %w", err)
	}
	dlq := b.exchange + ".dead-letter"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("声明死信队列失败: %w", err)
	}
	if err := ch.QueueBind(dlq, "", b.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("绑定死信队列失败: %w", err)
	}

	args := b.queueArgs()
	for _, key := range AllRoutingKeys {
		q := string(key)
		if _, err := ch.QueueDeclare(q, true, false, false, false, args); err != nil {
			return fmt.Errorf("声明队列 %s 失败: %w", q, err)
		}
		if err := ch.QueueBind(q, q, b.exchange, false, nil); err != nil {
			return fmt.Errorf("绑定队列 %s 失败: %w", q, err)
		}
	}
	return nil
}

// queueArgs 业务队列参数：被拒绝或过期的消息转入死信交换机
func (b *AMQPBroker) queueArgs() amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange": b.deadLetterExchange(),
	}
	if b.ttl > 0 {
		args["x-message-ttl"] = b.ttl.Milliseconds()
	}
	return args
}

// Publish 发布持久化消息；失败直接返回，由调用方决定记录日志与否
func (b *AMQPBroker) Publish(ctx context.Context, msg Message) error {
	key, body, err := Encode(msg)
	if err != nil {
		return err
	}

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
		}
		b.pubCh = ch
	}

	err = b.pubCh.PublishWithContext(ctx, b.exchange, string(key), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now(),
		Type:         string(key),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("发布消息失败 (%s): %w", key, err)
	}
	return nil
}

// Subscribe 消费指定路由键对应的队列，手动 ack，并发度受 prefetch 限制。
// ctx 取消后不再接收新投递；已在处理中的消息使用脱离 ctx 的上下文跑完并 ack/nack，
// 尚未取走的投递在通道关闭后由 RabbitMQ 重新投递。
func (b *AMQPBroker) Subscribe(ctx context.Context, keys []RoutingKey, h Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("打开消费通道失败: %w", err)
	}
	defer ch.Close()
	return b.consume(ctx, ch, keys, h)
}

// consume 在 ch 上消费直到 ctx 取消；连接或通道关闭时返回 ErrConnectionClosed，
// 队列被删除导致服务端取消消费者时同样返回
func (b *AMQPBroker) consume(ctx context.Context, ch *amqp.Channel, keys []RoutingKey, h Handler) error {
	if err := ch.Qos(b.prefetch, 0, false); err != nil {
		return fmt.Errorf("设置 prefetch 失败: %w", err)
	}

	type keyed struct {
		key RoutingKey
		d   amqp.Delivery
	}
	merged := make(chan keyed)
	// Subscribe 因连接中断返回时同样让转发协程退出
	feedCtx, stopFeeders := context.WithCancel(ctx)
	defer stopFeeders()
	for _, key := range keys {
		deliveries, err := ch.Consume(string(key), "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("订阅队列 %s 失败: %w", key, err)
		}
		go func(key RoutingKey, deliveries <-chan amqp.Delivery) {
			for d := range deliveries {
				select {
				case merged <- keyed{key: key, d: d}:
				case <-feedCtx.Done():
					return
				}
			}
		}(key, deliveries)
	}

	connClosed := b.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	consumerCancelled := ch.NotifyCancel(make(chan string, len(keys)))
	sem := make(chan struct{}, b.prefetch)
	var workers sync.WaitGroup
	defer workers.Wait()

	// 处理中的消息不随关闭信号取消，只受单条处理超时约束
	handlerCtx := context.WithoutCancel(ctx)
	timeout := b.handleTimeout
	if timeout <= 0 {
		timeout = defaultHandleTimeout
	}

	b.logger.Info("开始消费队列", zap.Any("keys", keys))

	for {
		select {
		case <-ctx.Done():
			return nil
		case amqpErr := <-connClosed:
			return fmt.Errorf("%w: %v", ErrConnectionClosed, amqpErr)
		case amqpErr := <-chClosed:
			return fmt.Errorf("%w: 消费通道已关闭: %v", ErrConnectionClosed, amqpErr)
		case tag := <-consumerCancelled:
			return fmt.Errorf("%w: 消费者 %s 被服务端取消", ErrConnectionClosed, tag)
		case item := <-merged:
			sem <- struct{}{}
			workers.Add(1)
			go func(item keyed) {
				defer func() {
					<-sem
					workers.Done()
				}()
				msgCtx, cancel := context.WithTimeout(handlerCtx, timeout)
				defer cancel()
				b.deliver(msgCtx, item.key, item.d, h)
			}(item)
		}
	}
}

// settlement 一次投递的处理结果
type settlement int

const (
	settleAck settlement = iota
	settleDeadLetter
	settleRequeue
)

// settle 解析并处理消息体，决定 ack / 死信 / 重新入队
func settle(ctx context.Context, key RoutingKey, body []byte, h Handler) (settlement, error) {
	msg, err := Decode(key, body)
	if err != nil {
		return settleDeadLetter, err
	}
	if err := h(ctx, msg); err != nil {
		if errors.Is(err, ErrRetryable) {
			return settleRequeue, err
		}
		return settleDeadLetter, err
	}
	return settleAck, nil
}

func (b *AMQPBroker) deliver(ctx context.Context, key RoutingKey, d amqp.Delivery, h Handler) {
	// 优先使用投递自带的路由键，兼容手工投递到队列的消息
	if d.RoutingKey != "" {
		key = RoutingKey(d.RoutingKey)
	}
	fields := []zap.Field{
		zap.String("routing_key", string(key)),
		zap.String("message_id", d.MessageId),
		zap.Bool("redelivered", d.Redelivered),
	}

	outcome, err := settle(ctx, key, d.Body, h)
	switch outcome {
	case settleAck:
		err = d.Ack(false)
		if err != nil {
			b.logger.Warn("消息 ack 失败", append(fields, zap.Error(err))...)
		}
		return
	case settleRequeue:
		b.logger.Warn("消息处理暂时失败，重新入队", append(fields, zap.Error(err))...)
		// 稍作等待，避免锁繁忙时立即重投形成空转
		if b.requeueDelay > 0 {
			time.Sleep(b.requeueDelay)
		}
		err = d.Nack(false, true)
	default:
		b.logger.Error("消息无法处理，转入死信", append(fields, zap.Error(err))...)
		err = d.Nack(false, false)
	}
	if err != nil {
		b.logger.Warn("消息 nack 失败", append(fields, zap.Error(err))...)
	}
}

// Close 关闭通道与连接
func (b *AMQPBroker) Close() error {
	b.pubMu.Lock()
	if b.pubCh != nil {
		b.pubCh.Close()
	}
	b.pubMu.Unlock()
	return b.conn.Close()
}
