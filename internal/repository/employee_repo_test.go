package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var employeeColumns = []string{
	"employee_id", "name", "email", "national_id", "phone", "position",
	"salary", "hired_on", "active", "deactivated_at", "created_at", "updated_at",
}

func TestEmployeeRepo_GetActiveByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmployeeRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "employees" WHERE employee_id = $1 AND active = $2`)).
		WillReturnRows(sqlmock.NewRows(employeeColumns).
			AddRow("emp-1", "Alice", "alice@corp.io", "N-1", nil, nil, nil, nil, true, nil, now, now))

	employee, err := repo.GetActiveByID(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", employee.Name)
	assert.True(t, employee.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmployeeRepo_GetActiveByID_Inactive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmployeeRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "employees" WHERE employee_id = $1 AND active = $2`)).
		WillReturnRows(sqlmock.NewRows(employeeColumns))

	_, err := repo.GetActiveByID(context.Background(), "emp-2")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEmployeeRepo_List_ActiveOnly(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmployeeRepo(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "employees" WHERE active = $1 ORDER BY created_at DESC`)).
		WillReturnRows(sqlmock.NewRows(employeeColumns).
			AddRow("emp-1", "Alice", "alice@corp.io", "N-1", nil, nil, nil, nil, true, nil, now, now).
			AddRow("emp-3", "Carol", "carol@corp.io", "N-3", nil, nil, nil, nil, true, nil, now, now))

	employees, err := repo.List(context.Background(), true)
	require.NoError(t, err)
	assert.Len(t, employees, 2)
}

func TestEmployeeRepo_Delete_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEmployeeRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "employees" WHERE employee_id = $1`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "missing"), gorm.ErrRecordNotFound)
}
