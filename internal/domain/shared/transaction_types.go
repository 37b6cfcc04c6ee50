package shared

// TransactionType defines the kind of a transaction record
type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeWithdrawal  TransactionType = "withdrawal"
	TransactionTypeTransferOut TransactionType = "transfer_out"
	TransactionTypeTransferIn  TransactionType = "transfer_in"
)

// IsTransfer reports whether the type is one side of a transfer
func (t TransactionType) IsTransfer() bool {
	return t == TransactionTypeTransferOut || t == TransactionTypeTransferIn
}

// Valid reports whether t is one of the known record kinds
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdrawal, TransactionTypeTransferOut, TransactionTypeTransferIn:
		return true
	}
	return false
}

// TransferStatus is reported back to the caller of a transfer
type TransferStatus string

const (
	TransferStatusCompleted TransferStatus = "completed"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
