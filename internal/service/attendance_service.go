package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/rules"
)

// ── 考勤模块业务错误 ──

var (
	ErrAttendanceNotFound = errors.New("考勤记录不存在")
)

// 记录 notes 的固定文案
const (
	notePendingValidation = "pending employee validation"
	noteAdminOverride     = "ADMIN OVERRIDE: "
	noteStatusOverride    = "status set manually"
)

// publishTimeout 发布校验请求的最长等待；请求本身被取消也不影响发布
const publishTimeout = 5 * time.Second

// AttendanceService 考勤业务接口
type AttendanceService interface {
	// Submit 本地规则校验通过后落库为 pending，并发出员工校验请求
	Submit(ctx context.Context, req *dto.SubmitAttendanceRequest) (*dto.AttendanceResponse, error)
	// ForceSubmit 管理员强制录入，直接 validated，不发消息
	ForceSubmit(ctx context.Context, req *dto.ForceAttendanceRequest) (*dto.AttendanceResponse, error)
	GetByID(ctx context.Context, id string) (*dto.AttendanceResponse, error)
	List(ctx context.Context, req *dto.AttendanceListRequest) ([]dto.AttendanceResponse, int64, error)
	ListByEmployeeDate(ctx context.Context, employeeID, date string) ([]dto.AttendanceResponse, error)
	ListPending(ctx context.Context) ([]dto.AttendanceResponse, error)
	Stats(ctx context.Context) (*dto.AttendanceStatsResponse, error)
	Monthly(ctx context.Context, req *dto.MonthlyReportRequest) (*dto.MonthlyAttendanceResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateAttendanceRequest) (*dto.AttendanceResponse, error)
	UpdateStatus(ctx context.Context, id string, req *dto.UpdateAttendanceStatusRequest) (*dto.AttendanceResponse, error)
	Delete(ctx context.Context, id string) error
	DeleteByEmployee(ctx context.Context, employeeID string) (*dto.DeleteByEmployeeResponse, error)
	WorkingHours(ctx context.Context) *dto.WorkingHoursResponse
}

type attendanceService struct {
	repo      *repository.Repository
	publisher messaging.Publisher
	locker    KeyLocker
	window    rules.Window
	now       func() time.Time
	logger    *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(
	repo *repository.Repository,
	publisher messaging.Publisher,
	locker KeyLocker,
	window rules.Window,
	logger *zap.Logger,
) AttendanceService {
	return &attendanceService{
		repo:      repo,
		publisher: publisher,
		locker:    locker,
		window:    window,
		now:       time.Now,
		logger:    logger,
	}
}

// punchInput 校验并补全后的打卡输入
type punchInput struct {
	employeeID string
	kind       rules.Kind
	date       string
	clock      rules.Clock
}

// normalizeSubmission 字段级校验（汇总全部错误）并将缺省的日期/时间补为当前时间
func (s *attendanceService) normalizeSubmission(req *dto.SubmitAttendanceRequest) (*punchInput, error) {
	var problems []string
	if req.EmployeeID == "" {
		problems = append(problems, "employee_id is required")
	}
	if !rules.Kind(req.Kind).Valid() {
		problems = append(problems, "kind must be one of entry, exit")
	}
	if req.Date != "" && !rules.ValidDate(req.Date) {
		problems = append(problems, "date must be YYYY-MM-DD")
	}
	var clock rules.Clock
	if req.Time != "" {
		c, err := rules.ParseClock(req.Time)
		if err != nil {
			problems = append(problems, "time must be HH:MM or HH:MM:SS")
		}
		clock = c
	}
	if len(problems) > 0 {
		return nil, &InputError{Problems: problems}
	}

	now := s.now()
	in := &punchInput{
		employeeID: req.EmployeeID,
		kind:       rules.Kind(req.Kind),
		date:       req.Date,
		clock:      clock,
	}
	if in.date == "" {
		in.date = now.Format(rules.DateLayout)
	}
	if req.Time == "" {
		in.clock = rules.ClockOf(now)
	}
	return in, nil
}

// latestPunch 同一员工同一天最近一条 pending/validated 记录，excludeID 用于对自身复核
func (s *attendanceService) latestPunch(ctx context.Context, employeeID, date, excludeID string) (*rules.Punch, error) {
	return findLatestPunch(ctx, s.repo.Attendance, employeeID, date, excludeID)
}

func findLatestPunch(ctx context.Context, repo repository.AttendanceRepository, employeeID, date, excludeID string) (*rules.Punch, error) {
	last, err := repo.FindLatest(ctx, employeeID, date, excludeID)
	if err != nil || last == nil {
		return nil, err
	}
	c, err := rules.ParseClock(last.RecordTime)
	if err != nil {
		return nil, fmt.Errorf("记录 %s 的时间格式损坏: %w", last.AttendanceID, err)
	}
	return &rules.Punch{Kind: rules.Kind(last.Kind), Time: c}, nil
}

// ────────────────────── Submit ──────────────────────

func (s *attendanceService) Submit(ctx context.Context, req *dto.SubmitAttendanceRequest) (*dto.AttendanceResponse, error) {
	in, err := s.normalizeSubmission(req)
	if err != nil {
		return nil, err
	}

	// 工作时间检查不依赖已有记录，无需持锁
	if d := s.window.CheckWorkingHours(in.clock); !d.Valid {
		return nil, &RuleViolationError{Message: d.Message}
	}

	unlock, err := s.locker.Lock(ctx, attendanceLockKey(in.employeeID, in.date))
	if err != nil {
		s.logger.Warn("获取考勤锁失败",
			zap.String("employee_id", in.employeeID), zap.String("date", in.date), zap.Error(err))
		return nil, err
	}

	record, err := s.createPending(ctx, in)
	unlock()
	if err != nil {
		return nil, err
	}

	s.requestValidation(ctx, record)

	return toAttendanceResponse(record), nil
}

// createPending 顺序校验与落库，调用方须持有 (员工, 日期) 锁
func (s *attendanceService) createPending(ctx context.Context, in *punchInput) (*model.AttendanceRecord, error) {
	last, err := s.latestPunch(ctx, in.employeeID, in.date, "")
	if err != nil {
		s.logger.Error("查询最近考勤记录失败", zap.String("employee_id", in.employeeID), zap.Error(err))
		return nil, err
	}
	if d := rules.CheckSequence(last, rules.Punch{Kind: in.kind, Time: in.clock}); !d.Valid {
		return nil, &RuleViolationError{Message: d.Message}
	}

	notes := notePendingValidation
	record := &model.AttendanceRecord{
		EmployeeID: in.employeeID,
		RecordDate: in.date,
		RecordTime: in.clock.String(),
		Kind:       string(in.kind),
		Status:     model.StatusPending,
		Notes:      &notes,
	}
	if err := s.repo.Attendance.Create(ctx, record); err != nil {
		s.logger.Error("创建考勤记录失败", zap.String("employee_id", in.employeeID), zap.Error(err))
		return nil, err
	}
	return record, nil
}

// requestValidation 发出员工校验请求。发送失败只记录日志，记录保持 pending，
// 由 pending 补偿扫描（若开启）或人工处理。
func (s *attendanceService) requestValidation(ctx context.Context, record *model.AttendanceRecord) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	req := messaging.ValidationRequest{
		AttendanceID: record.AttendanceID,
		EmployeeID:   record.EmployeeID,
		Kind:         record.Kind,
		Timestamp:    messaging.Timestamp(s.now()),
	}
	if record.RetryCount > 0 {
		retry := record.RetryCount
		req.RetryCount = &retry
	}

	if err := s.publisher.Publish(pubCtx, req); err != nil {
		s.logger.Error("发送员工校验请求失败，记录保持 pending",
			zap.String("attendance_id", record.AttendanceID),
			zap.String("employee_id", record.EmployeeID),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("已发送员工校验请求",
		zap.String("attendance_id", record.AttendanceID),
		zap.String("employee_id", record.EmployeeID),
	)
}

// ────────────────────── ForceSubmit ──────────────────────

func (s *attendanceService) ForceSubmit(ctx context.Context, req *dto.ForceAttendanceRequest) (*dto.AttendanceResponse, error) {
	in, err := s.normalizeSubmission(&req.Attendance)
	if err != nil {
		return nil, err
	}

	now := s.now()
	notes := noteAdminOverride + req.AdminNote
	record := &model.AttendanceRecord{
		EmployeeID:  in.employeeID,
		RecordDate:  in.date,
		RecordTime:  in.clock.String(),
		Kind:        string(in.kind),
		Status:      model.StatusValidated,
		ValidatedAt: &now,
		Notes:       &notes,
	}

	// 强制录入不做规则判定，但仍与同键的普通提交互斥，避免插入到其"查-写"之间
	unlock, err := s.locker.Lock(ctx, attendanceLockKey(in.employeeID, in.date))
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.repo.Attendance.Create(ctx, record); err != nil {
		s.logger.Error("强制创建考勤记录失败", zap.String("employee_id", in.employeeID), zap.Error(err))
		return nil, err
	}

	s.logger.Warn("管理员强制录入考勤",
		zap.String("attendance_id", record.AttendanceID),
		zap.String("employee_id", record.EmployeeID),
		zap.String("note", req.AdminNote),
	)
	return toAttendanceResponse(record), nil
}

// ────────────────────── 查询 ──────────────────────

func (s *attendanceService) getRecord(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	record, err := s.repo.Attendance.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAttendanceNotFound
		}
		s.logger.Error("查询考勤记录失败", zap.String("attendance_id", id), zap.Error(err))
		return nil, err
	}
	return record, nil
}

func (s *attendanceService) GetByID(ctx context.Context, id string) (*dto.AttendanceResponse, error) {
	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return toAttendanceResponse(record), nil
}

func (s *attendanceService) List(ctx context.Context, req *dto.AttendanceListRequest) ([]dto.AttendanceResponse, int64, error) {
	if req.Date != "" && !rules.ValidDate(req.Date) {
		return nil, 0, &InputError{Problems: []string{"date must be YYYY-MM-DD"}}
	}

	offset, limit := req.Window()
	records, total, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{
		EmployeeID: req.EmployeeID,
		Date:       req.Date,
		Status:     req.Status,
		Offset:     offset,
		Limit:      limit,
	})
	if err != nil {
		s.logger.Error("列出考勤记录失败", zap.Error(err))
		return nil, 0, err
	}
	return toAttendanceResponses(records), total, nil
}

func (s *attendanceService) ListByEmployeeDate(ctx context.Context, employeeID, date string) ([]dto.AttendanceResponse, error) {
	if date == "" {
		date = s.now().Format(rules.DateLayout)
	}
	if !rules.ValidDate(date) {
		return nil, &InputError{Problems: []string{"date must be YYYY-MM-DD"}}
	}

	records, _, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{
		EmployeeID: employeeID,
		Date:       date,
		Ascending:  true,
	})
	if err != nil {
		s.logger.Error("查询员工当日考勤失败", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, err
	}
	return toAttendanceResponses(records), nil
}

func (s *attendanceService) ListPending(ctx context.Context) ([]dto.AttendanceResponse, error) {
	records, _, err := s.repo.Attendance.List(ctx, repository.AttendanceFilter{
		Status:    model.StatusPending,
		Ascending: true,
	})
	if err != nil {
		s.logger.Error("列出 pending 记录失败", zap.Error(err))
		return nil, err
	}
	return toAttendanceResponses(records), nil
}

func (s *attendanceService) Stats(ctx context.Context) (*dto.AttendanceStatsResponse, error) {
	counts, err := s.repo.Attendance.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("统计考勤记录失败", zap.Error(err))
		return nil, err
	}
	resp := &dto.AttendanceStatsResponse{
		Pending:   counts[model.StatusPending],
		Validated: counts[model.StatusValidated],
		Rejected:  counts[model.StatusRejected],
	}
	resp.Total = resp.Pending + resp.Validated + resp.Rejected
	return resp, nil
}

func (s *attendanceService) WorkingHours(_ context.Context) *dto.WorkingHoursResponse {
	now := rules.ClockOf(s.now())
	return &dto.WorkingHoursResponse{
		Start:              s.window.Start.HHMM(),
		End:                s.window.End.HHMM(),
		CurrentTime:        now.String(),
		WithinWorkingHours: s.window.Contains(now),
	}
}

// ────────────────────── Monthly ──────────────────────

func (s *attendanceService) Monthly(ctx context.Context, req *dto.MonthlyReportRequest) (*dto.MonthlyAttendanceResponse, error) {
	records, err := s.monthRecords(ctx, req)
	if err != nil {
		return nil, err
	}
	return &dto.MonthlyAttendanceResponse{
		Year:    req.Year,
		Month:   req.Month,
		Total:   len(records),
		Days:    summarizeDays(records),
		Records: toAttendanceResponses(records),
	}, nil
}

func (s *attendanceService) monthRecords(ctx context.Context, req *dto.MonthlyReportRequest) ([]model.AttendanceRecord, error) {
	records, err := listMonthRecords(ctx, s.repo.Attendance, req)
	if err != nil {
		s.logger.Error("查询月度考勤失败",
			zap.Int("year", req.Year), zap.Int("month", req.Month), zap.Error(err))
		return nil, err
	}
	return records, nil
}

// listMonthRecords 某月（可限定员工）的全部记录，按日期、时间升序
func listMonthRecords(ctx context.Context, repo repository.AttendanceRepository, req *dto.MonthlyReportRequest) ([]model.AttendanceRecord, error) {
	first := time.Date(req.Year, time.Month(req.Month), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1)

	records, _, err := repo.List(ctx, repository.AttendanceFilter{
		EmployeeID: req.EmployeeID,
		DateFrom:   first.Format(rules.DateLayout),
		DateTo:     last.Format(rules.DateLayout),
		Ascending:  true,
	})
	return records, err
}

// summarizeDays 按 (员工, 日期) 汇总 validated 记录，相邻的 entry→exit 计入工时
func summarizeDays(records []model.AttendanceRecord) []dto.DailySummary {
	type dayKey struct{ employeeID, date string }
	byDay := make(map[dayKey]*dto.DailySummary)
	openEntry := make(map[dayKey]rules.Clock)
	var keys []dayKey

	for _, r := range records {
		if r.Status != model.StatusValidated {
			continue
		}
		c, err := rules.ParseClock(r.RecordTime)
		if err != nil {
			continue
		}
		k := dayKey{r.EmployeeID, r.RecordDate}
		day, ok := byDay[k]
		if !ok {
			day = &dto.DailySummary{EmployeeID: r.EmployeeID, Date: r.RecordDate}
			byDay[k] = day
			keys = append(keys, k)
		}

		switch rules.Kind(r.Kind) {
		case rules.KindEntry:
			day.Entries++
			if day.FirstEntry == "" {
				day.FirstEntry = r.RecordTime
			}
			openEntry[k] = c
		case rules.KindExit:
			day.Exits++
			day.LastExit = r.RecordTime
			if start, open := openEntry[k]; open && c > start {
				day.WorkedMinutes += int(c-start) / 60
				delete(openEntry, k)
			}
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].employeeID < keys[j].employeeID
	})
	days := make([]dto.DailySummary, 0, len(keys))
	for _, k := range keys {
		days = append(days, *byDay[k])
	}
	return days
}

// ────────────────────── Update ──────────────────────

// Update 直接修改字段，不走校验协议。
// 时间变化时重新检查工作时间；类型、日期或时间变化时以自身之外的最新记录重新做顺序检查。
func (s *attendanceService) Update(ctx context.Context, id string, req *dto.UpdateAttendanceRequest) (*dto.AttendanceResponse, error) {
	var problems []string
	if req.EmployeeID != nil && *req.EmployeeID == "" {
		problems = append(problems, "employee_id must not be empty")
	}
	if req.Kind != nil && !rules.Kind(*req.Kind).Valid() {
		problems = append(problems, "kind must be one of entry, exit")
	}
	if req.Date != nil && !rules.ValidDate(*req.Date) {
		problems = append(problems, "date must be YYYY-MM-DD")
	}
	var newClock rules.Clock
	if req.Time != nil {
		c, err := rules.ParseClock(*req.Time)
		if err != nil {
			problems = append(problems, "time must be HH:MM or HH:MM:SS")
		}
		newClock = c
	}
	if req.Status != nil && !model.ValidStatus(*req.Status) {
		problems = append(problems, "status must be one of pending, validated, rejected")
	}
	if len(problems) > 0 {
		return nil, &InputError{Problems: problems}
	}

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	timeChanged := req.Time != nil && newClock.String() != record.RecordTime
	sequenceChanged := timeChanged ||
		(req.Kind != nil && *req.Kind != record.Kind) ||
		(req.Date != nil && *req.Date != record.RecordDate) ||
		(req.EmployeeID != nil && *req.EmployeeID != record.EmployeeID)

	if req.EmployeeID != nil {
		record.EmployeeID = *req.EmployeeID
	}
	if req.Date != nil {
		record.RecordDate = *req.Date
	}
	if req.Time != nil {
		record.RecordTime = newClock.String()
	}
	if req.Kind != nil {
		record.Kind = *req.Kind
	}
	if req.Status != nil {
		record.Status = *req.Status
	}
	if req.RejectionReason != nil {
		record.RejectionReason = req.RejectionReason
	}
	if req.Notes != nil {
		record.Notes = req.Notes
	}

	if timeChanged {
		if d := s.window.CheckWorkingHours(newClock); !d.Valid {
			return nil, &RuleViolationError{Message: d.Message}
		}
	}

	// rejected 记录不参与顺序判定
	if !sequenceChanged || record.Status == model.StatusRejected {
		if err := s.saveRecord(ctx, record); err != nil {
			return nil, err
		}
		return toAttendanceResponse(record), nil
	}

	unlock, err := s.locker.Lock(ctx, attendanceLockKey(record.EmployeeID, record.RecordDate))
	if err != nil {
		return nil, err
	}
	defer unlock()

	last, err := s.latestPunch(ctx, record.EmployeeID, record.RecordDate, record.AttendanceID)
	if err != nil {
		return nil, err
	}
	clock, _ := rules.ParseClock(record.RecordTime)
	if d := rules.CheckSequence(last, rules.Punch{Kind: rules.Kind(record.Kind), Time: clock}); !d.Valid {
		return nil, &RuleViolationError{Message: d.Message}
	}

	if err := s.saveRecord(ctx, record); err != nil {
		return nil, err
	}
	return toAttendanceResponse(record), nil
}

func (s *attendanceService) saveRecord(ctx context.Context, record *model.AttendanceRecord) error {
	if err := s.repo.Attendance.Update(ctx, record); err != nil {
		s.logger.Error("更新考勤记录失败", zap.String("attendance_id", record.AttendanceID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── UpdateStatus ──────────────────────

func (s *attendanceService) UpdateStatus(ctx context.Context, id string, req *dto.UpdateAttendanceStatusRequest) (*dto.AttendanceResponse, error) {
	if !model.ValidStatus(req.Status) {
		return nil, &InputError{Problems: []string{"status must be one of pending, validated, rejected"}}
	}

	record, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	record.Status = req.Status
	switch req.Status {
	case model.StatusValidated:
		now := s.now()
		record.ValidatedAt = &now
		record.RejectionReason = nil
	case model.StatusRejected:
		record.RejectionReason = req.Reason
	}
	notes := noteStatusOverride
	if req.Reason != nil && *req.Reason != "" {
		notes = noteStatusOverride + ": " + *req.Reason
	}
	record.Notes = &notes

	if err := s.saveRecord(ctx, record); err != nil {
		return nil, err
	}

	s.logger.Info("考勤状态被手动修改",
		zap.String("attendance_id", id), zap.String("status", req.Status))
	return toAttendanceResponse(record), nil
}

// ────────────────────── Delete ──────────────────────

func (s *attendanceService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Attendance.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttendanceNotFound
		}
		s.logger.Error("删除考勤记录失败", zap.String("attendance_id", id), zap.Error(err))
		return err
	}
	return nil
}

func (s *attendanceService) DeleteByEmployee(ctx context.Context, employeeID string) (*dto.DeleteByEmployeeResponse, error) {
	n, err := s.repo.Attendance.DeleteByEmployee(ctx, employeeID)
	if err != nil {
		s.logger.Error("按员工删除考勤记录失败", zap.String("employee_id", employeeID), zap.Error(err))
		return nil, err
	}
	s.logger.Info("按员工删除考勤记录", zap.String("employee_id", employeeID), zap.Int64("deleted", n))
	return &dto.DeleteByEmployeeResponse{EmployeeID: employeeID, Deleted: n}, nil
}

// ── 内部辅助 ──

func toAttendanceResponse(r *model.AttendanceRecord) *dto.AttendanceResponse {
	resp := &dto.AttendanceResponse{
		ID:              r.AttendanceID,
		EmployeeID:      r.EmployeeID,
		Date:            r.RecordDate,
		Time:            r.RecordTime,
		Kind:            r.Kind,
		Status:          r.Status,
		RejectionReason: r.RejectionReason,
		EmployeeName:    r.EmployeeName,
		Notes:           r.Notes,
		RetryCount:      r.RetryCount,
		Version:         r.Version,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       r.UpdatedAt.Format(time.RFC3339),
	}
	if r.ValidatedAt != nil {
		v := r.ValidatedAt.Format(time.RFC3339)
		resp.ValidatedAt = &v
	}
	return resp
}

func toAttendanceResponses(records []model.AttendanceRecord) []dto.AttendanceResponse {
	result := make([]dto.AttendanceResponse, 0, len(records))
	for i := range records {
		result = append(result, *toAttendanceResponse(&records[i]))
	}
	return result
}
