package models

// All lists every persisted model; test fixtures and dev auto-migration use it.
func All() []any {
	return []any{
		&Variant{},
		&StockAuditEntry{},
		&Order{},
		&OrderItem{},
		&Return{},
		&ReturnItem{},
		&OutboxEvent{},
	}
}
