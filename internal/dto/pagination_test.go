package dto

import "testing"

func TestPaginationRequest_Window(t *testing.T) {
	tests := []struct {
		name       string
		req        PaginationRequest
		wantOffset int
		wantLimit  int
	}{
		{"省略参数", PaginationRequest{}, 0, DefaultPageSize},
		{"第二页", PaginationRequest{Page: 2, PageSize: 20}, 20, 20},
		{"超过上限被截断", PaginationRequest{Page: 3, PageSize: 1000}, 2 * MaxPageSize, MaxPageSize},
		{"负数按默认", PaginationRequest{Page: -1, PageSize: -5}, 0, DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, limit := tt.req.Window()
			if offset != tt.wantOffset || limit != tt.wantLimit {
				t.Errorf("Window() = (%d, %d), want (%d, %d)", offset, limit, tt.wantOffset, tt.wantLimit)
			}
		})
	}
}

func TestPaginationRequest_GetPage(t *testing.T) {
	if got := (PaginationRequest{}).GetPage(); got != 1 {
		t.Errorf("默认页码应为 1，实际 %d", got)
	}
	if got := (PaginationRequest{Page: 4}).GetPage(); got != 4 {
		t.Errorf("页码应为 4，实际 %d", got)
	}
}
