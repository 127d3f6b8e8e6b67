package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldUserID      = "user_id"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldTxID        = "transaction_id"
	FieldTxDesc      = "description"
	FieldAmountCents = "amount_cents"
	FieldCategory    = "category"
	FieldTxType      = "type"
	FieldStatus      = "status"
	FieldVersion     = "cache_version"
	FieldCount       = "count"
	FieldOutcome     = "outcome"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentSync     = "sync"
	ComponentMutation = "mutation"
	ComponentSession  = "session"
	ComponentCache    = "cache"
	ComponentStore    = "store"
	ComponentAMQP     = "amqp"
	ComponentSheets   = "sheets"
	ComponentAuth     = "auth"
	ComponentExport   = "export"
	ComponentCLI      = "cli"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpDelete    = "delete"
	OpList      = "list"
	OpSubscribe = "subscribe"
	OpSnapshot  = "snapshot"
	OpRollback  = "rollback"
	OpRefresh   = "refresh"
	OpExport    = "export"
	OpSignIn    = "sign_in"
	OpSignOut   = "sign_out"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

// WithComponent adds component field
func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithUser adds the scope user id
func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

// WithOperation adds operation field
func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithTransaction adds transaction-related fields
func (f LogFields) WithTransaction(id, desc string, amountCents int64, category, txType, status string) LogFields {
	if id != "" {
		f[FieldTxID] = id
	}
	f[FieldTxDesc] = desc
	f[FieldAmountCents] = amountCents
	f[FieldCategory] = category
	f[FieldTxType] = txType
	f[FieldStatus] = status
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
