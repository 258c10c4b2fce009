package model

import "errors"

var (
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrListingNotFound     = errors.New("listing not found")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrTransactionPending  = errors.New("transaction is still pending")
	ErrMetadataUnavailable = errors.New("metadata unavailable")
	ErrInvalidPrice        = errors.New("invalid price")
	ErrInvalidTxHash       = errors.New("invalid transaction hash format")
)
