package store

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"seara/internal/core"
)

// Timestamp is the seconds/nanoseconds pair some stores use for date fields.
type Timestamp struct {
	Seconds int64
	Nanos   int32
}

func (t Timestamp) Time() time.Time {
	return time.Unix(t.Seconds, int64(t.Nanos)).UTC()
}

// TimestampOf converts t to a Timestamp.
func TimestampOf(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

type serverTimestamp struct{}

// ServerTimestamp asks the store to fill the field with its own clock.
// Stores write a Timestamp in its place.
var ServerTimestamp any = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v any) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// EncodeInput builds the document fields written for a new transaction.
// createdAt is written as given; pass ServerTimestamp to let the store decide.
func EncodeInput(in core.TransactionInput, createdAt any) map[string]any {
	return map[string]any{
		FieldDescription: in.Description,
		FieldAmount:      in.Amount.Float64(),
		FieldCategory:    in.Category,
		FieldType:        string(in.Type),
		FieldStatus:      string(in.Status),
		FieldDate:        in.Date,
		FieldCreatedAt:   createdAt,
	}
}

// DecodeTransaction materializes a document into a transaction. Date fields
// that are not strings are normalized to ISO date-time strings.
func DecodeTransaction(doc Document) (core.Transaction, error) {
	if doc.ID == "" {
		return core.Transaction{}, fmt.Errorf("document without id")
	}
	amount, err := decodeAmount(doc.Fields[FieldAmount])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("document %s: %w", doc.ID, err)
	}
	date, err := NormalizeDate(doc.Fields[FieldDate])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("document %s: date: %w", doc.ID, err)
	}
	createdAt, err := NormalizeDate(doc.Fields[FieldCreatedAt])
	if err != nil {
		return core.Transaction{}, fmt.Errorf("document %s: createdAt: %w", doc.ID, err)
	}
	return core.Transaction{
		ID:          doc.ID,
		Description: stringField(doc.Fields, FieldDescription),
		Amount:      amount,
		Category:    stringField(doc.Fields, FieldCategory),
		Type:        core.TransactionType(stringField(doc.Fields, FieldType)),
		Status:      core.Status(stringField(doc.Fields, FieldStatus)),
		Date:        date,
		CreatedAt:   createdAt,
	}, nil
}

// NormalizeDate returns the string form of a stored date value. Strings pass
// through untouched, even when unparseable; the filter and exporter deal with those.
func NormalizeDate(v any) (string, error) {
	switch d := v.(type) {
	case nil:
		return "", nil
	case string:
		return d, nil
	case time.Time:
		return core.FormatISO(d), nil
	case *time.Time:
		if d == nil {
			return "", nil
		}
		return core.FormatISO(*d), nil
	case Timestamp:
		return core.FormatISO(d.Time()), nil
	case map[string]any:
		secs, ok1 := toInt64(firstOf(d, "seconds", "_seconds"))
		nanos, _ := toInt64(firstOf(d, "nanoseconds", "_nanoseconds", "nanos"))
		if !ok1 {
			return "", fmt.Errorf("unsupported timestamp map %v", d)
		}
		return core.FormatISO(time.Unix(secs, nanos)), nil
	default:
		return "", fmt.Errorf("unsupported date value of type %T", v)
	}
}

func decodeAmount(v any) (core.Money, error) {
	switch a := v.(type) {
	case float64:
		return core.MoneyFromFloat(a)
	case float32:
		return core.MoneyFromFloat(float64(a))
	case int:
		return core.MoneyFromFloat(float64(a))
	case int64:
		return core.MoneyFromFloat(float64(a))
	case json.Number:
		cents, err := core.ParseDecimalToCents(a.String())
		return core.Money{Cents: cents}, err
	case string:
		cents, err := core.ParseDecimalToCents(a)
		return core.Money{Cents: cents}, err
	default:
		return core.Money{}, fmt.Errorf("%w: unsupported amount of type %T", core.ErrInvalidAmount, v)
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func firstOf(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if math.Trunc(n) != n {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// SortKey returns the time used to order a document by date descending.
// Unparseable dates sort last.
func SortKey(fields map[string]any) time.Time {
	s, err := NormalizeDate(fields[FieldDate])
	if err != nil {
		return time.Time{}
	}
	t, err := core.ParseDateIn(s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortDocuments orders docs by date descending as instants, then by id.
func SortDocuments(docs []Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ki, kj := SortKey(docs[i].Fields), SortKey(docs[j].Fields)
		if !ki.Equal(kj) {
			return ki.After(kj)
		}
		return docs[i].ID < docs[j].ID
	})
}
