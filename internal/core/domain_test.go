package core

import (
	"errors"
	"strings"
	"testing"
)

func validInput() TransactionInput {
	return TransactionInput{
		Description: "Mercado",
		Amount:      Money{Cents: 15050},
		Category:    "Alimentação",
		Type:        Expense,
		Status:      StatusPaid,
		Date:        "2026-02-10",
	}
}

func TestTransactionInputValidate(t *testing.T) {
	if err := validInput().Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*TransactionInput)
		want   error
	}{
		{"empty description", func(in *TransactionInput) { in.Description = "  " }, ErrEmptyDescription},
		{"zero amount", func(in *TransactionInput) { in.Amount = Money{} }, ErrInvalidAmount},
		{"empty category", func(in *TransactionInput) { in.Category = "" }, ErrEmptyCategory},
		{"unknown type", func(in *TransactionInput) { in.Type = "transfer" }, ErrInvalidType},
		{"unknown status", func(in *TransactionInput) { in.Status = "cancelado" }, ErrInvalidStatus},
		{"bad date", func(in *TransactionInput) { in.Date = "10/02/2026" }, ErrInvalidDate},
		{"long accented description", func(in *TransactionInput) { in.Description = strings.Repeat("ç", 500) }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			if err := in.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStatusLabelsAndPending(t *testing.T) {
	cases := []struct {
		s       Status
		label   string
		pending bool
	}{
		{StatusPaid, "Pago", false},
		{StatusPayable, "A Pagar", true},
		{StatusReceived, "Recebido", false},
		{StatusReceivable, "A Receber", true},
	}
	for _, tc := range cases {
		if tc.s.Label() != tc.label {
			t.Errorf("%s label = %q, want %q", tc.s, tc.s.Label(), tc.label)
		}
		if tc.s.IsPending() != tc.pending {
			t.Errorf("%s pending = %v, want %v", tc.s, tc.s.IsPending(), tc.pending)
		}
	}
	if len(Statuses()) != 4 {
		t.Fatalf("expected four statuses")
	}
	if Status("x").Label() != "x" {
		t.Fatalf("unknown status should render raw value")
	}
}

func TestTypeLabels(t *testing.T) {
	if Income.Label() != "Entrada" || Expense.Label() != "Saída" {
		t.Fatalf("unexpected labels: %q %q", Income.Label(), Expense.Label())
	}
}

func TestInputRecord(t *testing.T) {
	in := validInput()
	in.Description = " Mercado "
	r := in.Record("temp-1", "2026-02-10T10:00:00.000Z")
	if r.ID != "temp-1" || r.Description != "Mercado" || r.CreatedAt == "" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if !r.IsPlaceholder() {
		t.Fatalf("expected placeholder record")
	}
}
