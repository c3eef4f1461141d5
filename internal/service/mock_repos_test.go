package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"staffclock/backend/internal/messaging"
	"staffclock/backend/internal/model"
	"staffclock/backend/internal/repository"
	pkgerrors "staffclock/backend/pkg/errors"
)

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct {
	mu        sync.Mutex
	records   map[string]*model.AttendanceRecord
	seq       int
	createErr error
	updateErr error
	findErr   error
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{records: make(map[string]*model.AttendanceRecord)}
}

func (m *mockAttendanceRepo) Create(_ context.Context, record *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if record.AttendanceID == "" {
		m.seq++
		record.AttendanceID = fmt.Sprintf("att-%03d", m.seq)
	}
	now := time.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	record.Version = 1
	cp := *record
	m.records[record.AttendanceID] = &cp
	return nil
}

func (m *mockAttendanceRepo) GetByID(_ context.Context, id string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockAttendanceRepo) FindLatest(_ context.Context, employeeID, date, excludeID string) (*model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	var latest *model.AttendanceRecord
	for _, r := range m.records {
		if r.EmployeeID != employeeID || r.RecordDate != date || r.AttendanceID == excludeID {
			continue
		}
		if r.Status == model.StatusRejected {
			continue
		}
		if latest == nil || r.RecordTime > latest.RecordTime {
			latest = r
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (m *mockAttendanceRepo) Update(_ context.Context, record *model.AttendanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	stored, ok := m.records[record.AttendanceID]
	if !ok || stored.Version != record.Version {
		return pkgerrors.ErrOptimisticLock
	}
	record.Version++
	record.UpdatedAt = time.Now()
	cp := *record
	m.records[record.AttendanceID] = &cp
	return nil
}

func (m *mockAttendanceRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.records, id)
	return nil
}

func (m *mockAttendanceRepo) DeleteByEmployee(_ context.Context, employeeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.records {
		if r.EmployeeID == employeeID {
			delete(m.records, id)
			n++
		}
	}
	return n, nil
}

func (m *mockAttendanceRepo) List(_ context.Context, f repository.AttendanceFilter) ([]model.AttendanceRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.AttendanceRecord
	for _, r := range m.records {
		if f.EmployeeID != "" && r.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Date != "" && r.RecordDate != f.Date {
			continue
		}
		if f.DateFrom != "" && r.RecordDate < f.DateFrom {
			continue
		}
		if f.DateTo != "" && r.RecordDate > f.DateTo {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		result = append(result, *r)
	}
	sort.Slice(result, func(i, j int) bool {
		a := result[i].RecordDate + result[i].RecordTime
		b := result[j].RecordDate + result[j].RecordTime
		if f.Ascending {
			return a < b
		}
		return a > b
	})

	total := int64(len(result))
	if f.Limit > 0 {
		if f.Offset >= len(result) {
			return []model.AttendanceRecord{}, total, nil
		}
		end := f.Offset + f.Limit
		if end > len(result) {
			end = len(result)
		}
		result = result[f.Offset:end]
	}
	return result, total, nil
}

func (m *mockAttendanceRepo) ListStalePending(_ context.Context, before time.Time, limit int) ([]model.AttendanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.AttendanceRecord
	for _, r := range m.records {
		if r.Status == model.StatusPending && r.UpdatedAt.Before(before) {
			result = append(result, *r)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UpdatedAt.Before(result[j].UpdatedAt) })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockAttendanceRepo) CountByStatus(_ context.Context) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int64{
		model.StatusPending:   0,
		model.StatusValidated: 0,
		model.StatusRejected:  0,
	}
	for _, r := range m.records {
		counts[r.Status]++
	}
	return counts, nil
}

// put 直接写入一条记录（绕过 Create 的字段覆盖）
func (m *mockAttendanceRepo) put(r *model.AttendanceRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	cp := *r
	m.records[r.AttendanceID] = &cp
}

func (m *mockAttendanceRepo) get(id string) *model.AttendanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.records[id]; ok {
		cp := *r
		return &cp
	}
	return nil
}

// ── Mock EmployeeRepository ──

type mockEmployeeRepo struct {
	mu        sync.Mutex
	employees map[string]*model.Employee
	lookupErr error
}

func newMockEmployeeRepo() *mockEmployeeRepo {
	return &mockEmployeeRepo{employees: make(map[string]*model.Employee)}
}

func (m *mockEmployeeRepo) Create(_ context.Context, e *model.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.EmployeeID == "" {
		e.EmployeeID = fmt.Sprintf("emp-%03d", len(m.employees)+1)
	}
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	m.employees[e.EmployeeID] = &cp
	return nil
}

func (m *mockEmployeeRepo) GetByID(_ context.Context, id string) (*model.Employee, error) {
	return m.find(func(e *model.Employee) bool { return e.EmployeeID == id })
}

func (m *mockEmployeeRepo) GetActiveByID(_ context.Context, id string) (*model.Employee, error) {
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	return m.find(func(e *model.Employee) bool { return e.EmployeeID == id && e.Active })
}

func (m *mockEmployeeRepo) GetByEmail(_ context.Context, email string) (*model.Employee, error) {
	return m.find(func(e *model.Employee) bool { return e.Email == email })
}

func (m *mockEmployeeRepo) GetByNationalID(_ context.Context, nationalID string) (*model.Employee, error) {
	return m.find(func(e *model.Employee) bool { return e.NationalID == nationalID })
}

func (m *mockEmployeeRepo) find(match func(*model.Employee) bool) (*model.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.employees {
		if match(e) {
			cp := *e
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockEmployeeRepo) List(_ context.Context, activeOnly bool) ([]model.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Employee
	for _, e := range m.employees {
		if activeOnly && !e.Active {
			continue
		}
		result = append(result, *e)
	}
	return result, nil
}

func (m *mockEmployeeRepo) Update(_ context.Context, e *model.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.UpdatedAt = time.Now()
	cp := *e
	m.employees[e.EmployeeID] = &cp
	return nil
}

func (m *mockEmployeeRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.employees[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(m.employees, id)
	return nil
}

// ── Mock Publisher ──

type mockPublisher struct {
	mu       sync.Mutex
	messages []messaging.Message
	err      error
}

func (p *mockPublisher) Publish(_ context.Context, msg messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *mockPublisher) sent() []messaging.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]messaging.Message(nil), p.messages...)
}

// ── 通用辅助 ──

func strPtr(s string) *string { return &s }
