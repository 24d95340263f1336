package topics

const (
	// Wallet
	WalletTransactions = "wallet_transactions"

	// DLQs
	WalletTransactionsDLQ = "wallet_transactions_dlq"
)
