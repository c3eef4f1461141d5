package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"staffclock/backend/config"
	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	pkgerrors "staffclock/backend/pkg/errors"
)

const (
	reasonValidationTimedOut = "validation timed out"
	noteValidationTimedOut   = "no employee verdict received after retries"
)

// SweepResult 单轮扫描结果
type SweepResult struct {
	Resent  int
	Expired int
}

// PendingSweeper 补偿扫描：长时间停留在 pending 的记录重新发送校验请求，
// 超过最大重试次数后置为 rejected。默认关闭。
type PendingSweeper struct {
	repo      repository.AttendanceRepository
	publisher messaging.Publisher
	locker    KeyLocker
	cfg       config.SweepConfig
	now       func() time.Time
	logger    *zap.Logger
}

// NewPendingSweeper 创建 PendingSweeper 实例
func NewPendingSweeper(
	repo *repository.Repository,
	publisher messaging.Publisher,
	locker KeyLocker,
	cfg config.SweepConfig,
	logger *zap.Logger,
) *PendingSweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &PendingSweeper{
		repo:      repo.Attendance,
		publisher: publisher,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Run 按 interval 周期扫描，直到 ctx 取消
func (s *PendingSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("pending 补偿扫描已启动",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("timeout", s.cfg.Timeout),
		zap.Int("max_retries", s.cfg.MaxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("pending 补偿扫描失败", zap.Error(err))
				continue
			}
			if res.Resent > 0 || res.Expired > 0 {
				s.logger.Info("pending 补偿扫描完成",
					zap.Int("resent", res.Resent), zap.Int("expired", res.Expired))
			}
		}
	}
}

// SweepOnce 执行一轮扫描
func (s *PendingSweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	stale, err := s.repo.ListStalePending(ctx, s.now().Add(-s.cfg.Timeout), s.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for i := range stale {
		expired, err := s.sweepRecord(ctx, &stale[i])
		if err != nil {
			// 单条失败不影响其他记录；乐观锁冲突说明记录刚被处理过
			if !errors.Is(err, pkgerrors.ErrOptimisticLock) {
				s.logger.Warn("处理 pending 记录失败",
					zap.String("attendance_id", stale[i].AttendanceID), zap.Error(err))
			}
			continue
		}
		if expired {
			res.Expired++
		} else {
			res.Resent++
		}
	}
	return res, nil
}

func (s *PendingSweeper) sweepRecord(ctx context.Context, record *model.AttendanceRecord) (bool, error) {
	unlock, err := s.locker.Lock(ctx, attendanceLockKey(record.EmployeeID, record.RecordDate))
	if err != nil {
		return false, err
	}
	defer unlock()

	if record.RetryCount >= s.cfg.MaxRetries {
		reason := reasonValidationTimedOut
		notes := noteValidationTimedOut
		record.Status = model.StatusRejected
		record.RejectionReason = &reason
		record.Notes = &notes
		if err := s.repo.Update(ctx, record); err != nil {
			return false, err
		}
		s.logger.Warn("pending 记录校验超时，已拒绝",
			zap.String("attendance_id", record.AttendanceID),
			zap.Int("retry_count", record.RetryCount),
		)
		return true, nil
	}

	// 先落库 retry_count，再发消息；发送失败下一轮会再次扫到
	record.RetryCount++
	if err := s.repo.Update(ctx, record); err != nil {
		return false, err
	}

	retry := record.RetryCount
	req := messaging.ValidationRequest{
		AttendanceID: record.AttendanceID,
		EmployeeID:   record.EmployeeID,
		Kind:         record.Kind,
		Timestamp:    messaging.Timestamp(s.now()),
		RetryCount:   &retry,
	}
	if err := s.publisher.Publish(ctx, req); err != nil {
		return false, err
	}
	return false, nil
}
