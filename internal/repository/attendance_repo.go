package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"staffclock/backend/internal/model"
	pkgerrors "staffclock/backend/pkg/errors"
)

// AttendanceFilter 考勤记录查询条件，空字段表示不过滤
type AttendanceFilter struct {
	EmployeeID string
	Date       string
	DateFrom   string // 含
	DateTo     string // 含
	Status     string
	Ascending  bool // 按日期、时间升序；默认降序
	Offset     int
	Limit      int // 0 表示不分页
}

// AttendanceRepository 考勤记录数据访问接口
type AttendanceRepository interface {
	Create(ctx context.Context, record *model.AttendanceRecord) error
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	// FindLatest 返回员工当天 pending/validated 中时间最晚的一条，可排除指定 ID；没有时返回 nil, nil
	FindLatest(ctx context.Context, employeeID, date, excludeID string) (*model.AttendanceRecord, error)
	Update(ctx context.Context, record *model.AttendanceRecord) error
	Delete(ctx context.Context, id string) error
	DeleteByEmployee(ctx context.Context, employeeID string) (int64, error)
	List(ctx context.Context, filter AttendanceFilter) ([]model.AttendanceRecord, int64, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.AttendanceRecord, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

func (r *attendanceRepo) Create(ctx context.Context, record *model.AttendanceRecord) error {
	if record.Version == 0 {
		record.Version = 1
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *attendanceRepo) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var record model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		Take(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *attendanceRepo) FindLatest(ctx context.Context, employeeID, date, excludeID string) (*model.AttendanceRecord, error) {
	db := r.db.WithContext(ctx).
		Where("employee_id = ? AND record_date = ?", employeeID, date).
		Where("status IN ?", []string{model.StatusPending, model.StatusValidated})
	if excludeID != "" {
		db = db.Where("attendance_id <> ?", excludeID)
	}

	var record model.AttendanceRecord
	err := db.Order("record_time DESC").Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// Update 基于 version 的乐观锁更新
func (r *attendanceRepo) Update(ctx context.Context, record *model.AttendanceRecord) error {
	oldVersion := record.Version
	result := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Where("attendance_id = ? AND version = ?", record.AttendanceID, oldVersion).
		Updates(map[string]interface{}{
			"employee_id":      record.EmployeeID,
			"record_date":      record.RecordDate,
			"record_time":      record.RecordTime,
			"kind":             record.Kind,
			"status":           record.Status,
			"rejection_reason": record.RejectionReason,
			"employee_name":    record.EmployeeName,
			"validated_at":     record.ValidatedAt,
			"notes":            record.Notes,
			"retry_count":      record.RetryCount,
			"updated_at":       time.Now(),
			"version":          oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	record.Version = oldVersion + 1
	return nil
}

func (r *attendanceRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		Delete(&model.AttendanceRecord{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *attendanceRepo) DeleteByEmployee(ctx context.Context, employeeID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("employee_id = ?", employeeID).
		Delete(&model.AttendanceRecord{})
	return result.RowsAffected, result.Error
}

func (r *attendanceRepo) List(ctx context.Context, filter AttendanceFilter) ([]model.AttendanceRecord, int64, error) {
	var records []model.AttendanceRecord
	var total int64

	db := r.db.WithContext(ctx).Model(&model.AttendanceRecord{})
	if filter.EmployeeID != "" {
		db = db.Where("employee_id = ?", filter.EmployeeID)
	}
	if filter.Date != "" {
		db = db.Where("record_date = ?", filter.Date)
	}
	if filter.DateFrom != "" {
		db = db.Where("record_date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		db = db.Where("record_date <= ?", filter.DateTo)
	}
	if filter.Status != "" {
		db = db.Where("status = ?", filter.Status)
	}

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := "record_date DESC, record_time DESC"
	if filter.Ascending {
		order = "record_date ASC, record_time ASC"
	}
	db = db.Order(order)
	if filter.Limit > 0 {
		db = db.Offset(filter.Offset).Limit(filter.Limit)
	}

	if err := db.Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListStalePending 最后一次更新早于 before 且仍为 pending 的记录，最早的优先
func (r *attendanceRepo) ListStalePending(ctx context.Context, before time.Time, limit int) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", model.StatusPending, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *attendanceRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := map[string]int64{
		model.StatusPending:   0,
		model.StatusValidated: 0,
		model.StatusRejected:  0,
	}
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}
