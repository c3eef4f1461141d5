package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/rules"
	pkgerrors "staffclock/backend/pkg/errors"
)

// 对账写入的固定文案
const (
	defaultRejectionReason = "employee invalid"
	noteEmployeeCheckFail  = "employee check failed"
	noteRulesFailed        = "employee valid, but attendance rules failed at validation"
	noteValidationComplete = "validation complete"
)

// Reconciler 消费员工服务返回的校验结论，把 pending 记录推进到终态
type Reconciler struct {
	repo   repository.AttendanceRepository
	locker KeyLocker
	window rules.Window
	now    func() time.Time
	logger *zap.Logger
}

// NewReconciler 创建 Reconciler 实例
func NewReconciler(repo *repository.Repository, locker KeyLocker, window rules.Window, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:   repo.Attendance,
		locker: locker,
		window: window,
		now:    time.Now,
		logger: logger,
	}
}

// HandleVerdict 实现 messaging.VerdictHandler。
// 记录不存在或已是终态时丢弃结论并返回 nil，重复投递因此是无操作。
func (r *Reconciler) HandleVerdict(ctx context.Context, v messaging.ValidationVerdict) error {
	fields := []zap.Field{
		zap.String("attendance_id", v.AttendanceID),
		zap.String("employee_id", v.EmployeeID),
		zap.Bool("is_valid", v.IsValid),
	}

	record, err := r.load(ctx, v.AttendanceID, fields)
	if err != nil || record == nil {
		return err
	}

	unlock, err := r.locker.Lock(ctx, attendanceLockKey(record.EmployeeID, record.RecordDate))
	if err != nil {
		r.logger.Warn("对账获取考勤锁失败，结论将重新投递", append(fields, zap.Error(err))...)
		if errors.Is(err, pkgerrors.ErrBusy) || ctx.Err() != nil {
			return messaging.Retry(err)
		}
		return err
	}
	defer unlock()

	// 持锁后重新读取，等锁期间记录可能已被其他消费者或管理员修改
	record, err = r.load(ctx, v.AttendanceID, fields)
	if err != nil || record == nil {
		return err
	}

	if v.IsValid {
		err = r.applyValid(ctx, record, v)
	} else {
		r.applyInvalid(record, v)
	}
	if err != nil {
		r.logger.Error("对账复核失败", append(fields, zap.Error(err))...)
		return err
	}

	if err := r.repo.Update(ctx, record); err != nil {
		r.logger.Error("保存对账结果失败", append(fields, zap.Error(err))...)
		return err
	}

	r.logger.Info("考勤对账完成",
		append(fields, zap.String("status", record.Status))...)
	return nil
}

// load 返回 nil, nil 表示无需处理（不存在或已是终态）
func (r *Reconciler) load(ctx context.Context, id string, fields []zap.Field) (*model.AttendanceRecord, error) {
	record, err := r.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.logger.Warn("校验结论对应的考勤记录不存在，丢弃", fields...)
			return nil, nil
		}
		r.logger.Error("对账查询考勤记录失败", append(fields, zap.Error(err))...)
		return nil, err
	}
	if model.IsTerminal(record.Status) {
		r.logger.Info("考勤记录已是终态，忽略重复结论",
			append(fields, zap.String("status", record.Status))...)
		return nil, nil
	}
	return record, nil
}

func (r *Reconciler) applyInvalid(record *model.AttendanceRecord, v messaging.ValidationVerdict) {
	reason := defaultRejectionReason
	if v.Message != nil && *v.Message != "" {
		reason = *v.Message
	}
	notes := noteEmployeeCheckFail
	record.Status = model.StatusRejected
	record.RejectionReason = &reason
	record.Notes = &notes
}

// applyValid 员工有效时，以记录自身存储的日期与时间重新做工作时间与顺序检查
func (r *Reconciler) applyValid(ctx context.Context, record *model.AttendanceRecord, v messaging.ValidationVerdict) error {
	clock, err := rules.ParseClock(record.RecordTime)
	if err != nil {
		return err
	}
	last, err := findLatestPunch(ctx, r.repo, record.EmployeeID, record.RecordDate, record.AttendanceID)
	if err != nil {
		return err
	}

	d := r.window.Check(last, rules.Punch{Kind: rules.Kind(record.Kind), Time: clock})
	if !d.Valid {
		reason := d.Message
		notes := noteRulesFailed
		record.Status = model.StatusRejected
		record.RejectionReason = &reason
		record.Notes = &notes
		return nil
	}

	now := r.now()
	notes := d.Message
	if notes == "" {
		notes = noteValidationComplete
	}
	record.Status = model.StatusValidated
	record.EmployeeName = v.EmployeeName
	record.ValidatedAt = &now
	record.RejectionReason = nil
	record.Notes = &notes
	return nil
}
