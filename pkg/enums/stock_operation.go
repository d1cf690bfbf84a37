package enums

// StockOperation labels an entry in the stock audit trail.
type StockOperation string

const (
	StockOperationReserve  StockOperation = "reserve"
	StockOperationRelease  StockOperation = "release"
	StockOperationFinalize StockOperation = "finalize"
	StockOperationAdjust   StockOperation = "adjust"
	StockOperationRestock  StockOperation = "restock"
)

var validStockOperations = []StockOperation{
	StockOperationReserve,
	StockOperationRelease,
	StockOperationFinalize,
	StockOperationAdjust,
	StockOperationRestock,
}

// IsValid reports whether the value is a known StockOperation.
func (o StockOperation) IsValid() bool {
	for _, candidate := range validStockOperations {
		if candidate == o {
			return true
		}
	}
	return false
}
