package core

import (
	"testing"
	"time"
)

func februaryRange() *DateRange {
	return &DateRange{
		From: time.Date(2026, 2, 1, 15, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 2, 28, 9, 0, 0, 0, time.UTC),
	}
}

func TestFilterNilRangeIsIdentity(t *testing.T) {
	records := []Transaction{{ID: "1", Date: "garbage"}, {ID: "2"}}
	got := Filter(records, nil)
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
		t.Fatalf("expected records unchanged, got %+v", got)
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name string
		tx   Transaction
		want bool
	}{
		{
			name: "settled inside range",
			tx:   Transaction{Status: StatusPaid, Date: "2026-02-10", CreatedAt: "2025-01-01T00:00:00Z"},
			want: true,
		},
		{
			name: "settled outside range",
			tx:   Transaction{Status: StatusPaid, Date: "2026-03-01", CreatedAt: "2026-02-10T00:00:00Z"},
			want: false,
		},
		{
			name: "range start is inclusive at start of day",
			tx:   Transaction{Status: StatusReceived, Date: "2026-02-01"},
			want: true,
		},
		{
			name: "range end is inclusive at end of day",
			tx:   Transaction{Status: StatusReceived, Date: "2026-02-28T23:59:59Z"},
			want: true,
		},
		{
			name: "pending with createdAt inside and date outside",
			tx:   Transaction{Status: StatusReceivable, Date: "2026-06-01", CreatedAt: "2026-02-10T10:00:00Z"},
			want: true,
		},
		{
			name: "pending with createdAt outside stays visible",
			tx:   Transaction{Status: StatusPayable, Date: "2025-06-01", CreatedAt: "2025-05-10T10:00:00Z"},
			want: true,
		},
		{
			name: "pending with unparseable createdAt",
			tx:   Transaction{Status: StatusPayable, Date: "2026-02-10", CreatedAt: ""},
			want: false,
		},
		{
			name: "settled with unparseable date",
			tx:   Transaction{Status: StatusPaid, Date: "10/02/2026"},
			want: false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Filter([]Transaction{tc.tx}, februaryRange())
			if (len(got) == 1) != tc.want {
				t.Fatalf("included=%v, want %v", len(got) == 1, tc.want)
			}
		})
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	records := []Transaction{
		{ID: "c", Status: StatusPaid, Date: "2026-02-20"},
		{ID: "x", Status: StatusPaid, Date: "2026-01-20"},
		{ID: "b", Status: StatusPaid, Date: "2026-02-10"},
		{ID: "a", Status: StatusPaid, Date: "2026-02-01"},
	}
	got := Filter(records, februaryRange())
	if len(got) != 3 || got[0].ID != "c" || got[1].ID != "b" || got[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}
