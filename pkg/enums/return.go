package enums

import "fmt"

// ReturnType distinguishes a refund-style return from an exchange.
type ReturnType string

const (
	ReturnTypeReturn   ReturnType = "return"
	ReturnTypeExchange ReturnType = "exchange"
)

var validReturnTypes = []ReturnType{ReturnTypeReturn, ReturnTypeExchange}

func (t ReturnType) IsValid() bool {
	for _, candidate := range validReturnTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseReturnType converts raw input into a ReturnType.
func ParseReturnType(value string) (ReturnType, error) {
	for _, candidate := range validReturnTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid return type %q", value)
}

// InventoryAction says what happens to goods coming back from a customer.
type InventoryAction string

const (
	InventoryActionRestock  InventoryAction = "restock"
	InventoryActionWriteoff InventoryAction = "writeoff"
)

var validInventoryActions = []InventoryAction{InventoryActionRestock, InventoryActionWriteoff}

func (a InventoryAction) IsValid() bool {
	for _, candidate := range validInventoryActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseInventoryAction converts raw input into an InventoryAction.
func ParseInventoryAction(value string) (InventoryAction, error) {
	for _, candidate := range validInventoryActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory action %q", value)
}

// ReturnStatus tracks a return record. Staff-created returns complete immediately.
type ReturnStatus string

const (
	ReturnStatusRequested ReturnStatus = "requested"
	ReturnStatusCompleted ReturnStatus = "completed"
)
