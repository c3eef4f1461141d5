//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	pkgerrors "staffclock/backend/pkg/errors"
)

// ═══════════════════════════════════════════════════════════
// Test Setup
// ═══════════════════════════════════════════════════════════

var testDB *gorm.DB

func TestMain(m *testing.M) {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		dsn = "host=localhost port=5433 user=staffclock password=staffclock_password dbname=staffclock_test sslmode=disable TimeZone=UTC"
	}

	var err error
	testDB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "无法连接测试数据库: %v\n", err)
		os.Exit(1)
	}

	// 测试库同时承载两个服务的表
	if err := testDB.AutoMigrate(&model.AttendanceRecord{}, &model.Employee{}); err != nil {
		fmt.Fprintf(os.Stderr, "AutoMigrate 失败: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// uniqueEmployeeID 每个用例独立的员工 ID，避免用例之间互相干扰
func uniqueEmployeeID() string {
	return fmt.Sprintf("emp-%d", time.Now().UnixNano())
}

func createRecord(t *testing.T, repo *repository.Repository, employeeID, date, clock, kind, status string) *model.AttendanceRecord {
	t.Helper()
	r := &model.AttendanceRecord{
		EmployeeID: employeeID,
		RecordDate: date,
		RecordTime: clock,
		Kind:       kind,
		Status:     status,
	}
	if err := repo.Attendance.Create(context.Background(), r); err != nil {
		t.Fatalf("创建考勤记录失败: %v", err)
	}
	t.Cleanup(func() {
		testDB.Where("attendance_id = ?", r.AttendanceID).Delete(&model.AttendanceRecord{})
	})
	return r
}

// ═══════════════════════════════════════════════════════════
// Test: FindLatest
// ═══════════════════════════════════════════════════════════

func TestFindLatest_IgnoresRejectedAndExcluded(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	emp := uniqueEmployeeID()

	entry := createRecord(t, repo, emp, "2024-01-15", "09:00:00", "entry", model.StatusValidated)
	createRecord(t, repo, emp, "2024-01-15", "12:00:00", "exit", model.StatusRejected)
	pending := createRecord(t, repo, emp, "2024-01-15", "13:00:00", "exit", model.StatusPending)

	latest, err := repo.Attendance.FindLatest(ctx, emp, "2024-01-15", "")
	if err != nil {
		t.Fatalf("FindLatest 失败: %v", err)
	}
	if latest == nil || latest.AttendanceID != pending.AttendanceID {
		t.Fatalf("期望最新记录为 pending 的 13:00 出勤，实际 %+v", latest)
	}

	latest, err = repo.Attendance.FindLatest(ctx, emp, "2024-01-15", pending.AttendanceID)
	if err != nil {
		t.Fatalf("FindLatest 失败: %v", err)
	}
	if latest == nil || latest.AttendanceID != entry.AttendanceID {
		t.Fatalf("排除自身后期望返回 09:00 入勤，实际 %+v", latest)
	}

	latest, err = repo.Attendance.FindLatest(ctx, emp, "2024-01-16", "")
	if err != nil || latest != nil {
		t.Fatalf("其他日期应无记录，got %+v, err %v", latest, err)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Optimistic Lock
// ═══════════════════════════════════════════════════════════

func TestOptimisticLock_ConflictDetected(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	r := createRecord(t, repo, uniqueEmployeeID(), "2024-01-15", "09:00:00", "entry", model.StatusPending)

	first, _ := repo.Attendance.GetByID(ctx, r.AttendanceID)
	second, _ := repo.Attendance.GetByID(ctx, r.AttendanceID)

	first.Status = model.StatusValidated
	if err := repo.Attendance.Update(ctx, first); err != nil {
		t.Fatalf("第一次更新失败: %v", err)
	}

	second.Status = model.StatusRejected
	if err := repo.Attendance.Update(ctx, second); err != pkgerrors.ErrOptimisticLock {
		t.Fatalf("期望 ErrOptimisticLock，实际 %v", err)
	}

	stored, _ := repo.Attendance.GetByID(ctx, r.AttendanceID)
	if stored.Status != model.StatusValidated || stored.Version != 2 {
		t.Errorf("期望 validated/v2，实际 %s/v%d", stored.Status, stored.Version)
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Stale Pending
// ═══════════════════════════════════════════════════════════

func TestListStalePending(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	emp := uniqueEmployeeID()

	r := createRecord(t, repo, emp, "2024-01-15", "09:00:00", "entry", model.StatusPending)
	createRecord(t, repo, emp, "2024-01-15", "12:00:00", "exit", model.StatusValidated)

	stale, err := repo.Attendance.ListStalePending(ctx, time.Now().Add(time.Minute), 100)
	if err != nil {
		t.Fatalf("ListStalePending 失败: %v", err)
	}
	found := false
	for _, s := range stale {
		if s.Status != model.StatusPending {
			t.Errorf("不应返回非 pending 记录: %s", s.AttendanceID)
		}
		if s.AttendanceID == r.AttendanceID {
			found = true
		}
	}
	if !found {
		t.Error("期望返回刚创建的 pending 记录")
	}
}

// ═══════════════════════════════════════════════════════════
// Test: Employee
// ═══════════════════════════════════════════════════════════

func TestEmployee_ActiveLookup(t *testing.T) {
	repo := repository.NewRepository(testDB)
	ctx := context.Background()
	suffix := time.Now().UnixNano()

	e := &model.Employee{
		Name:       "Integration Alice",
		Email:      fmt.Sprintf("alice%d@corp.io", suffix),
		NationalID: fmt.Sprintf("NID%d", suffix),
		Active:     true,
	}
	if err := repo.Employee.Create(ctx, e); err != nil {
		t.Fatalf("创建员工失败: %v", err)
	}
	defer testDB.Where("employee_id = ?", e.EmployeeID).Delete(&model.Employee{})

	if _, err := repo.Employee.GetActiveByID(ctx, e.EmployeeID); err != nil {
		t.Fatalf("期望可查到在职员工: %v", err)
	}

	now := time.Now()
	e.Active = false
	e.DeactivatedAt = &now
	if err := repo.Employee.Update(ctx, e); err != nil {
		t.Fatalf("停用员工失败: %v", err)
	}

	if _, err := repo.Employee.GetActiveByID(ctx, e.EmployeeID); err != gorm.ErrRecordNotFound {
		t.Fatalf("停用后期望 ErrRecordNotFound，实际 %v", err)
	}
	if _, err := repo.Employee.GetByID(ctx, e.EmployeeID); err != nil {
		t.Fatalf("停用员工仍应可按 ID 查到: %v", err)
	}
}
