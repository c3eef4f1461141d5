// Package messaging 员工身份校验的请求/应答协议：消息结构、路由键、编解码与分发表。
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// RoutingKey 路由键，每种逻辑消息对应一个独立队列
type RoutingKey string

const (
	RoutingValidateEmployee  RoutingKey = "validate-employee"
	RoutingEmployeeValidated RoutingKey = "employee-validated"
	RoutingEmployeeRejected  RoutingKey = "employee-rejected"
)

// AllRoutingKeys 拓扑声明时使用
var AllRoutingKeys = []RoutingKey{
	RoutingValidateEmployee,
	RoutingEmployeeValidated,
	RoutingEmployeeRejected,
}

var (
	ErrUnknownRoutingKey = errors.New("未知的路由键")
	ErrMalformedMessage  = errors.New("消息体无法解析")
)

// Message 协议消息，只有 ValidationRequest 与 ValidationVerdict 两种实现
type Message interface {
	RoutingKey() RoutingKey
	isMessage()
}

// ValidationRequest 考勤服务 → 员工服务：校验员工是否有效
type ValidationRequest struct {
	AttendanceID string `json:"attendanceId"`
	EmployeeID   string `json:"employeeId"`
	Kind         string `json:"type"`
	Timestamp    string `json:"timestamp"`
	RetryCount   *int   `json:"retryCount,omitempty"`
}

func (ValidationRequest) RoutingKey() RoutingKey { return RoutingValidateEmployee }
func (ValidationRequest) isMessage()             {}

// ValidationVerdict 员工服务 → 考勤服务：校验结论
type ValidationVerdict struct {
	AttendanceID string  `json:"attendanceId"`
	IsValid      bool    `json:"isValid"`
	EmployeeID   string  `json:"employeeId"`
	EmployeeName *string `json:"employeeName,omitempty"`
	Message      *string `json:"message,omitempty"`
	Timestamp    string  `json:"timestamp"`
}

// RoutingKey 由结论决定走 validated 还是 rejected 队列
func (v ValidationVerdict) RoutingKey() RoutingKey {
	if v.IsValid {
		return RoutingEmployeeValidated
	}
	return RoutingEmployeeRejected
}
func (ValidationVerdict) isMessage() {}

// Timestamp 协议统一使用 RFC3339（毫秒）UTC 时间戳
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Encode 序列化消息，返回其路由键
func Encode(msg Message) (RoutingKey, []byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", nil, fmt.Errorf("序列化消息失败: %w", err)
	}
	return msg.RoutingKey(), body, nil
}

// Decode 按路由键反序列化消息。
// 应答队列上路由键优先于消息体中的 isValid 字段。
func Decode(key RoutingKey, body []byte) (Message, error) {
	switch key {
	case RoutingValidateEmployee:
		var req ValidationRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if req.AttendanceID == "" || req.EmployeeID == "" {
			return nil, fmt.Errorf("%w: 缺少 attendanceId 或 employeeId", ErrMalformedMessage)
		}
		return req, nil
	case RoutingEmployeeValidated, RoutingEmployeeRejected:
		var v ValidationVerdict
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
		}
		if v.AttendanceID == "" {
			return nil, fmt.Errorf("%w: 缺少 attendanceId", ErrMalformedMessage)
		}
		v.IsValid = key == RoutingEmployeeValidated
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoutingKey, key)
	}
}
