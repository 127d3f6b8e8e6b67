package core

import (
	"errors"
	"strings"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	StatusPaid       Status = "pago"
	StatusPayable    Status = "a_pagar"
	StatusReceived   Status = "recebido"
	StatusReceivable Status = "a_receber"
)

// PlaceholderPrefix marks ids of provisional records whose create is still in flight.
const PlaceholderPrefix = "temp-"

type (
	TransactionType string

	Status string

	Money struct {
		Cents int64
	}

	// Transaction is a single income or expense record of one user.
	// Date and CreatedAt keep the string form delivered by the store; parse them
	// with ParseDate when a time value is needed.
	Transaction struct {
		ID          string
		Description string
		Amount      Money
		Category    string
		Type        TransactionType
		Status      Status
		Date        string
		CreatedAt   string
	}

	// TransactionInput holds the user-submitted fields of a new transaction.
	TransactionInput struct {
		Description string
		Amount      Money
		Category    string
		Type        TransactionType
		Status      Status
		Date        string
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrInvalidType      = errors.New("invalid transaction type")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrInvalidDate      = errors.New("invalid date")
)

// Categories offered by the entry form. Stored categories are free text.
var Categories = []string{
	"Alimentação",
	"Moradia",
	"Transporte",
	"Saúde",
	"Educação",
	"Lazer",
	"Salário",
	"Investimentos",
	"Outros",
}

var typeLabels = map[TransactionType]string{
	Income:  "Entrada",
	Expense: "Saída",
}

var statusLabels = map[Status]string{
	StatusPaid:       "Pago",
	StatusPayable:    "A Pagar",
	StatusReceived:   "Recebido",
	StatusReceivable: "A Receber",
}

func (t TransactionType) Valid() bool {
	_, ok := typeLabels[t]
	return ok
}

// Label returns the display label, or the raw value for unknown types.
func (t TransactionType) Label() string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

func (s Status) Valid() bool {
	_, ok := statusLabels[s]
	return ok
}

// Label returns the display label, or the raw value for unknown statuses.
func (s Status) Label() string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsPending reports whether the status is an unsettled obligation.
func (s Status) IsPending() bool {
	return s == StatusPayable || s == StatusReceivable
}

// Statuses returns the four statuses in display order.
func Statuses() []Status {
	return []Status{StatusPaid, StatusPayable, StatusReceived, StatusReceivable}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// IsPlaceholder reports whether the record is a provisional local copy.
func (t Transaction) IsPlaceholder() bool {
	return IsPlaceholderID(t.ID)
}

func IsPlaceholderID(id string) bool {
	return strings.HasPrefix(id, PlaceholderPrefix)
}

func (in TransactionInput) Validate() error {
	if len(strings.TrimSpace(in.Description)) == 0 {
		return ErrEmptyDescription
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	if !in.Status.Valid() {
		return ErrInvalidStatus
	}
	if _, err := ParseDate(in.Date); err != nil {
		return ErrInvalidDate
	}
	return nil
}

// Normalize trims the free-text fields.
func (in TransactionInput) Normalize() TransactionInput {
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Date = strings.TrimSpace(in.Date)
	return in
}

// Record builds the transaction stored for this input.
func (in TransactionInput) Record(id, createdAt string) Transaction {
	in = in.Normalize()
	return Transaction{
		ID:          id,
		Description: in.Description,
		Amount:      in.Amount,
		Category:    in.Category,
		Type:        in.Type,
		Status:      in.Status,
		Date:        in.Date,
		CreatedAt:   createdAt,
	}
}
