package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/repository"
)

// 校验结论文案
const (
	verdictEmployeeValid    = "employee valid"
	verdictEmployeeNotFound = "employee not found or inactive"
	verdictInternalError    = "internal system error"
)

// IdentityVerdictHandler 员工服务侧：回答"该员工当前是否在职"。
// 内部错误降级为否定结论，保证每个请求都有应答；
// 查询因 ctx 取消或超时而中断时不作答，消息重新投递。
type IdentityVerdictHandler struct {
	employees repository.EmployeeRepository
	publisher messaging.Publisher
	now       func() time.Time
	logger    *zap.Logger
}

// NewIdentityVerdictHandler 创建 IdentityVerdictHandler 实例
func NewIdentityVerdictHandler(repo *repository.Repository, publisher messaging.Publisher, logger *zap.Logger) *IdentityVerdictHandler {
	return &IdentityVerdictHandler{
		employees: repo.Employee,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// HandleRequest 实现 messaging.RequestHandler
func (h *IdentityVerdictHandler) HandleRequest(ctx context.Context, req messaging.ValidationRequest) error {
	verdict, err := h.decide(ctx, req)
	if err != nil {
		h.logger.Warn("员工查询被中断，请求将重新投递",
			zap.String("attendance_id", req.AttendanceID),
			zap.String("employee_id", req.EmployeeID), zap.Error(err))
		return messaging.Retry(err)
	}

	fields := []zap.Field{
		zap.String("attendance_id", req.AttendanceID),
		zap.String("employee_id", req.EmployeeID),
		zap.Bool("is_valid", verdict.IsValid),
	}

	// 回复发送失败不重试，对端记录保持 pending
	if err := h.publisher.Publish(ctx, verdict); err != nil {
		h.logger.Error("发送校验结论失败", append(fields, zap.Error(err))...)
		return nil
	}
	h.logger.Info("已发送校验结论", fields...)
	return nil
}

func (h *IdentityVerdictHandler) decide(ctx context.Context, req messaging.ValidationRequest) (messaging.ValidationVerdict, error) {
	verdict := messaging.ValidationVerdict{
		AttendanceID: req.AttendanceID,
		EmployeeID:   req.EmployeeID,
		Timestamp:    messaging.Timestamp(h.now()),
	}

	employee, err := h.employees.GetActiveByID(ctx, req.EmployeeID)
	switch {
	case err == nil:
		msg := verdictEmployeeValid
		name := employee.Name
		verdict.IsValid = true
		verdict.EmployeeName = &name
		verdict.Message = &msg
	case errors.Is(err, gorm.ErrRecordNotFound):
		msg := verdictEmployeeNotFound
		verdict.Message = &msg
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return verdict, err
	default:
		h.logger.Error("查询员工失败，按无效处理",
			zap.String("employee_id", req.EmployeeID), zap.Error(err))
		msg := verdictInternalError
		verdict.Message = &msg
	}
	return verdict, nil
}
