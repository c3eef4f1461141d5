package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"staffclock/backend/internal/dto"
	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	"staffclock/backend/internal/rules"
)

// ── 测试辅助 ──

var fixedNow = time.Date(2024, 6, 22, 10, 0, 0, 0, time.Local)

func setupTestAttendanceService() (*attendanceService, *mockAttendanceRepo, *mockPublisher) {
	attRepo := newMockAttendanceRepo()
	pub := &mockPublisher{}
	repo := &repository.Repository{
		Attendance: attRepo,
		Employee:   newMockEmployeeRepo(),
	}
	svc := NewAttendanceService(repo, pub, NewLocalLocker(time.Second), rules.DefaultWindow, zap.NewNop()).(*attendanceService)
	svc.now = func() time.Time { return fixedNow }
	return svc, attRepo, pub
}

func submit(svc AttendanceService, employeeID, kind, date, clock string) (*dto.AttendanceResponse, error) {
	return svc.Submit(context.Background(), &dto.SubmitAttendanceRequest{
		EmployeeID: employeeID,
		Kind:       kind,
		Date:       date,
		Time:       clock,
	})
}

func expectRuleViolation(t *testing.T, err error, contains string) {
	t.Helper()
	var rv *RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("期望 RuleViolationError，实际: %v", err)
	}
	if !errors.Is(err, ErrRuleViolation) {
		t.Error("RuleViolationError 应能 errors.Is(ErrRuleViolation)")
	}
	if !strings.Contains(rv.Message, contains) {
		t.Errorf("期望消息包含 %q，实际: %s", contains, rv.Message)
	}
}

// ── Submit 测试 ──

func TestAttendanceService_Submit_FirstEntryPending(t *testing.T) {
	svc, attRepo, pub := setupTestAttendanceService()

	result, err := submit(svc, "E1", "entry", "2024-06-22", "08:30:00")
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if result.Status != model.StatusPending {
		t.Errorf("期望 status=pending，实际=%s", result.Status)
	}
	if result.Notes == nil || *result.Notes != notePendingValidation {
		t.Errorf("期望 notes=%q，实际=%v", notePendingValidation, result.Notes)
	}
	if attRepo.get(result.ID) == nil {
		t.Fatal("记录应已落库")
	}

	sent := pub.sent()
	if len(sent) != 1 {
		t.Fatalf("期望发出 1 条校验请求，实际 %d", len(sent))
	}
	req, ok := sent[0].(messaging.ValidationRequest)
	if !ok {
		t.Fatalf("期望 ValidationRequest，实际 %T", sent[0])
	}
	if req.AttendanceID != result.ID || req.EmployeeID != "E1" || req.Kind != "entry" {
		t.Errorf("校验请求字段不符: %+v", req)
	}
	if req.RetryCount != nil {
		t.Error("首次请求不应携带 retryCount")
	}
}

func TestAttendanceService_Submit_FirstExitRejected(t *testing.T) {
	svc, attRepo, pub := setupTestAttendanceService()

	_, err := submit(svc, "E1", "exit", "2024-06-22", "12:00")
	expectRuleViolation(t, err, "no prior entry")
	if len(attRepo.records) != 0 {
		t.Error("被拒绝的提交不应落库")
	}
	if len(pub.sent()) != 0 {
		t.Error("被拒绝的提交不应发消息")
	}
}

func TestAttendanceService_Submit_BeforeWorkingHours(t *testing.T) {
	svc, attRepo, pub := setupTestAttendanceService()

	_, err := submit(svc, "E1", "entry", "2024-06-22", "07:59:59")
	expectRuleViolation(t, err, "before 08:00")
	if len(attRepo.records) != 0 || len(pub.sent()) != 0 {
		t.Error("工作时间外的提交不应落库或发消息")
	}
}

func TestAttendanceService_Submit_WindowBoundaries(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	cases := []struct {
		employee string
		clock    string
		ok       bool
	}{
		{"B1", "08:00:00", true},
		{"B2", "17:00:00", true},
		{"B3", "07:59:59", false},
		{"B4", "17:00:01", false},
	}
	for _, tc := range cases {
		_, err := submit(svc, tc.employee, "entry", "2024-06-22", tc.clock)
		if tc.ok && err != nil {
			t.Errorf("%s 应被接受: %v", tc.clock, err)
		}
		if !tc.ok && !errors.Is(err, ErrRuleViolation) {
			t.Errorf("%s 应被拒绝，实际: %v", tc.clock, err)
		}
	}
}

func TestAttendanceService_Submit_InputErrorsAggregated(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()

	_, err := submit(svc, "", "lunch", "22-06-2024", "25:00")
	var ie *InputError
	if !errors.As(err, &ie) {
		t.Fatalf("期望 InputError，实际: %v", err)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("InputError 应能 errors.Is(ErrInvalidInput)")
	}
	if len(ie.Problems) != 4 {
		t.Errorf("期望 4 个字段错误，实际 %d: %v", len(ie.Problems), ie.Problems)
	}
	if len(attRepo.records) != 0 {
		t.Error("字段错误不应落库")
	}
}

func TestAttendanceService_Submit_DefaultsToNow(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	result, err := submit(svc, "E1", "entry", "", "")
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if result.Date != "2024-06-22" || result.Time != "10:00:00" {
		t.Errorf("期望默认 2024-06-22 10:00:00，实际 %s %s", result.Date, result.Time)
	}
}

func TestAttendanceService_Submit_NormalizesTime(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	result, err := submit(svc, "E1", "entry", "2024-06-22", "9:05")
	if err != nil {
		t.Fatalf("Submit 应成功: %v", err)
	}
	if result.Time != "09:05:00" {
		t.Errorf("期望 09:05:00，实际 %s", result.Time)
	}
}

func TestAttendanceService_Submit_ConsecutiveEntries(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	if _, err := submit(svc, "E1", "entry", "2024-06-22", "08:30:00"); err != nil {
		t.Fatalf("第一次进入应成功: %v", err)
	}
	// 第一条仍为 pending 时再提交进入
	_, err := submit(svc, "E1", "entry", "2024-06-22", "09:00:00")
	expectRuleViolation(t, err, "two consecutive entries")
}

func TestAttendanceService_Submit_ExitMustFollowEntry(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	if _, err := submit(svc, "E1", "entry", "2024-06-22", "09:00:00"); err != nil {
		t.Fatalf("进入应成功: %v", err)
	}

	_, err := submit(svc, "E1", "exit", "2024-06-22", "09:00:00")
	expectRuleViolation(t, err, "exit not after entry")

	if _, err := submit(svc, "E1", "exit", "2024-06-22", "09:00:01"); err != nil {
		t.Fatalf("晚于进入的离开应成功: %v", err)
	}

	_, err = submit(svc, "E1", "exit", "2024-06-22", "12:00:00")
	expectRuleViolation(t, err, "two consecutive exits")

	if _, err := submit(svc, "E1", "entry", "2024-06-22", "13:00:00"); err != nil {
		t.Fatalf("离开后再进入应成功: %v", err)
	}
}

func TestAttendanceService_Submit_IgnoresRejectedRecords(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	attRepo.put(&model.AttendanceRecord{
		AttendanceID: "old", EmployeeID: "E1", RecordDate: "2024-06-22",
		RecordTime: "08:10:00", Kind: "entry", Status: model.StatusRejected,
	})

	_, err := submit(svc, "E1", "exit", "2024-06-22", "12:00:00")
	expectRuleViolation(t, err, "no prior entry")
}

func TestAttendanceService_Submit_PublishFailureKeepsPending(t *testing.T) {
	svc, attRepo, pub := setupTestAttendanceService()
	pub.err = errors.New("broker unreachable")

	result, err := submit(svc, "E1", "entry", "2024-06-22", "08:30:00")
	if err != nil {
		t.Fatalf("消息发送失败不应影响调用方: %v", err)
	}
	stored := attRepo.get(result.ID)
	if stored == nil || stored.Status != model.StatusPending {
		t.Error("消息发送失败后记录应保持 pending")
	}
}

func TestAttendanceService_Submit_StoreFailure(t *testing.T) {
	svc, attRepo, pub := setupTestAttendanceService()
	attRepo.createErr = errors.New("db down")

	if _, err := submit(svc, "E1", "entry", "2024-06-22", "08:30:00"); err == nil {
		t.Fatal("落库失败应返回错误")
	}
	if len(pub.sent()) != 0 {
		t.Error("落库失败不应发消息")
	}
}

// 同一员工同一天的并发提交只能有一条进入成功
func TestAttendanceService_Submit_ConcurrentSerialized(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := submit(svc, "E1", "entry", "2024-06-22", fmt.Sprintf("09:%02d:00", i))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("期望恰好 1 条进入成功，实际 %d", succeeded)
	}
	if len(attRepo.records) != 1 {
		t.Errorf("期望落库 1 条，实际 %d", len(attRepo.records))
	}
}

// ── ForceSubmit 测试 ──

func TestAttendanceService_ForceSubmit_BypassesRules(t *testing.T) {
	svc, _, pub := setupTestAttendanceService()

	result, err := svc.ForceSubmit(context.Background(), &dto.ForceAttendanceRequest{
		Attendance: dto.SubmitAttendanceRequest{EmployeeID: "E1", Kind: "exit", Date: "2024-06-22", Time: "06:00"},
		AdminNote:  "badge reader broken",
	})
	if err != nil {
		t.Fatalf("ForceSubmit 应成功: %v", err)
	}
	if result.Status != model.StatusValidated {
		t.Errorf("期望 validated，实际 %s", result.Status)
	}
	if result.ValidatedAt == nil {
		t.Error("期望 validated_at 已设置")
	}
	if result.Notes == nil || *result.Notes != "ADMIN OVERRIDE: badge reader broken" {
		t.Errorf("notes 不符: %v", result.Notes)
	}
	if len(pub.sent()) != 0 {
		t.Error("强制录入不应发消息")
	}
}

func TestAttendanceService_ForceSubmit_StillValidatesFields(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	_, err := svc.ForceSubmit(context.Background(), &dto.ForceAttendanceRequest{
		Attendance: dto.SubmitAttendanceRequest{EmployeeID: "E1", Kind: "break"},
		AdminNote:  "x",
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("期望 ErrInvalidInput，实际: %v", err)
	}
}

// ── Update 测试 ──

func seedRecord(attRepo *mockAttendanceRepo, id, employee, clock, kind, status string) {
	attRepo.put(&model.AttendanceRecord{
		AttendanceID: id, EmployeeID: employee, RecordDate: "2024-06-22",
		RecordTime: clock, Kind: kind, Status: status,
		VersionedModel: model.VersionedModel{BaseModel: model.BaseModel{CreatedAt: fixedNow, UpdatedAt: fixedNow}},
	})
}

func TestAttendanceService_Update_NotFound(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	_, err := svc.Update(context.Background(), "missing", &dto.UpdateAttendanceRequest{Notes: strPtr("x")})
	if !errors.Is(err, ErrAttendanceNotFound) {
		t.Errorf("期望 ErrAttendanceNotFound，实际: %v", err)
	}
}

func TestAttendanceService_Update_PlainFields(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusPending)

	result, err := svc.Update(context.Background(), "a1", &dto.UpdateAttendanceRequest{
		Notes:  strPtr("corrected by HR"),
		Status: strPtr(model.StatusValidated),
	})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if result.Status != model.StatusValidated || *result.Notes != "corrected by HR" {
		t.Errorf("更新结果不符: %+v", result)
	}
	if result.Version != 2 {
		t.Errorf("期望 version=2，实际 %d", result.Version)
	}
}

func TestAttendanceService_Update_TimeOutsideWindow(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusValidated)

	_, err := svc.Update(context.Background(), "a1", &dto.UpdateAttendanceRequest{Time: strPtr("18:30")})
	expectRuleViolation(t, err, "after 17:00")
	if attRepo.get("a1").RecordTime != "09:00:00" {
		t.Error("校验失败不应修改记录")
	}
}

func TestAttendanceService_Update_KindRecheckExcludesSelf(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusValidated)
	seedRecord(attRepo, "a2", "E1", "12:00:00", "exit", model.StatusValidated)

	// a2 改为 entry：除自身外最新为 09:00 entry，连续进入
	_, err := svc.Update(context.Background(), "a2", &dto.UpdateAttendanceRequest{Kind: strPtr("entry")})
	expectRuleViolation(t, err, "two consecutive entries")

	// a2 改时间仍为 exit 且晚于进入，应通过
	result, err := svc.Update(context.Background(), "a2", &dto.UpdateAttendanceRequest{Time: strPtr("12:30")})
	if err != nil {
		t.Fatalf("Update 应成功: %v", err)
	}
	if result.Time != "12:30:00" {
		t.Errorf("期望 12:30:00，实际 %s", result.Time)
	}
}

func TestAttendanceService_Update_InvalidFields(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusPending)

	_, err := svc.Update(context.Background(), "a1", &dto.UpdateAttendanceRequest{
		Kind: strPtr("nap"),
		Date: strPtr("tomorrow"),
	})
	var ie *InputError
	if !errors.As(err, &ie) || len(ie.Problems) != 2 {
		t.Errorf("期望 2 个字段错误，实际: %v", err)
	}
}

// ── UpdateStatus 测试 ──

func TestAttendanceService_UpdateStatus_Rejected(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusPending)

	result, err := svc.UpdateStatus(context.Background(), "a1", &dto.UpdateAttendanceStatusRequest{
		Status: model.StatusRejected,
		Reason: strPtr("duplicate badge"),
	})
	if err != nil {
		t.Fatalf("UpdateStatus 应成功: %v", err)
	}
	if result.Status != model.StatusRejected {
		t.Errorf("期望 rejected，实际 %s", result.Status)
	}
	if result.RejectionReason == nil || *result.RejectionReason != "duplicate badge" {
		t.Errorf("rejection_reason 不符: %v", result.RejectionReason)
	}
}

func TestAttendanceService_UpdateStatus_Validated(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusRejected)

	result, err := svc.UpdateStatus(context.Background(), "a1", &dto.UpdateAttendanceStatusRequest{Status: model.StatusValidated})
	if err != nil {
		t.Fatalf("UpdateStatus 应成功: %v", err)
	}
	if result.ValidatedAt == nil || result.RejectionReason != nil {
		t.Errorf("validated 应设置 validated_at 并清空 rejection_reason: %+v", result)
	}
}

// ── 查询 / 删除 测试 ──

func TestAttendanceService_ListByEmployeeDate_SortedAscending(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a2", "E1", "12:00:00", "exit", model.StatusValidated)
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusValidated)
	seedRecord(attRepo, "b1", "E2", "09:30:00", "entry", model.StatusValidated)

	result, err := svc.ListByEmployeeDate(context.Background(), "E1", "2024-06-22")
	if err != nil {
		t.Fatalf("ListByEmployeeDate 应成功: %v", err)
	}
	if len(result) != 2 || result[0].ID != "a1" || result[1].ID != "a2" {
		t.Errorf("期望 [a1 a2]，实际 %+v", result)
	}
}

func TestAttendanceService_List_Paginated(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	for i := 0; i < 5; i++ {
		seedRecord(attRepo, fmt.Sprintf("a%d", i), "E1", fmt.Sprintf("1%d:00:00", i), "entry", model.StatusPending)
	}

	req := &dto.AttendanceListRequest{Status: model.StatusPending}
	req.Page, req.PageSize = 2, 2
	result, total, err := svc.List(context.Background(), req)
	if err != nil {
		t.Fatalf("List 应成功: %v", err)
	}
	if total != 5 || len(result) != 2 {
		t.Errorf("期望 total=5 len=2，实际 total=%d len=%d", total, len(result))
	}
}

func TestAttendanceService_Stats(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusPending)
	seedRecord(attRepo, "a2", "E2", "09:00:00", "entry", model.StatusValidated)
	seedRecord(attRepo, "a3", "E3", "09:00:00", "entry", model.StatusValidated)

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats 应成功: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Validated != 2 || stats.Rejected != 0 {
		t.Errorf("统计不符: %+v", stats)
	}
}

func TestAttendanceService_Monthly_WorkedMinutes(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusValidated)
	seedRecord(attRepo, "a2", "E1", "12:30:00", "exit", model.StatusValidated)
	seedRecord(attRepo, "a3", "E1", "13:30:00", "entry", model.StatusValidated)
	seedRecord(attRepo, "a4", "E1", "17:00:00", "exit", model.StatusValidated)
	seedRecord(attRepo, "a5", "E1", "10:00:00", "entry", model.StatusRejected)

	result, err := svc.Monthly(context.Background(), &dto.MonthlyReportRequest{Year: 2024, Month: 6, EmployeeID: "E1"})
	if err != nil {
		t.Fatalf("Monthly 应成功: %v", err)
	}
	if result.Total != 5 {
		t.Errorf("期望 5 条记录，实际 %d", result.Total)
	}
	if len(result.Days) != 1 {
		t.Fatalf("期望 1 天汇总，实际 %d", len(result.Days))
	}
	day := result.Days[0]
	if day.Entries != 2 || day.Exits != 2 || day.WorkedMinutes != 420 {
		t.Errorf("汇总不符: %+v", day)
	}
	if day.FirstEntry != "09:00:00" || day.LastExit != "17:00:00" {
		t.Errorf("首末时间不符: %+v", day)
	}
}

func TestAttendanceService_Delete(t *testing.T) {
	svc, attRepo, _ := setupTestAttendanceService()
	seedRecord(attRepo, "a1", "E1", "09:00:00", "entry", model.StatusPending)
	seedRecord(attRepo, "a2", "E1", "12:00:00", "exit", model.StatusPending)
	seedRecord(attRepo, "b1", "E2", "09:00:00", "entry", model.StatusPending)

	if err := svc.Delete(context.Background(), "b1"); err != nil {
		t.Fatalf("Delete 应成功: %v", err)
	}
	if err := svc.Delete(context.Background(), "b1"); !errors.Is(err, ErrAttendanceNotFound) {
		t.Errorf("重复删除期望 ErrAttendanceNotFound，实际: %v", err)
	}

	result, err := svc.DeleteByEmployee(context.Background(), "E1")
	if err != nil {
		t.Fatalf("DeleteByEmployee 应成功: %v", err)
	}
	if result.Deleted != 2 || len(attRepo.records) != 0 {
		t.Errorf("期望删除 2 条并清空，实际 deleted=%d 剩余=%d", result.Deleted, len(attRepo.records))
	}
}

func TestAttendanceService_WorkingHours(t *testing.T) {
	svc, _, _ := setupTestAttendanceService()

	wh := svc.WorkingHours(context.Background())
	if wh.Start != "08:00" || wh.End != "17:00" {
		t.Errorf("窗口不符: %+v", wh)
	}
	if wh.CurrentTime != "10:00:00" || !wh.WithinWorkingHours {
		t.Errorf("当前时间判定不符: %+v", wh)
	}
}
