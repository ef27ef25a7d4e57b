package plugin

// OperationType classifies a usage record for billing.
type OperationType string

// OperationUnit is the unit the operation amount is denominated in.
type OperationUnit string

const (
	OperationTypeRun OperationType = "run"

	OperationUnitUnits  OperationUnit = "units"
	OperationUnitTokens OperationUnit = "tokens"
)

// UsageReport is emitted once per completion call billed through the
// plugin's own credentials. It is constructed after the provider response
// and discarded once returned to the host.
type UsageReport struct {
	OperationType   OperationType `json:"operationType"`
	OperationUnit   OperationUnit `json:"operationUnit"`
	OperationAmount int64         `json:"operationAmount"`
	AuditID         string        `json:"auditId,omitempty"`
}

// RunUnits builds the standard per-call usage report.
func RunUnits(amount int64, auditID string) UsageReport {
	return UsageReport{
		OperationType:   OperationTypeRun,
		OperationUnit:   OperationUnitUnits,
		OperationAmount: amount,
		AuditID:         auditID,
	}
}
