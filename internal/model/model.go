// Package model defines the data entities that flow through the
// ingestion pipeline.
package model

// SlotNotification is emitted by the Subscriber for every new slot the
// upstream node reports. Immutable once received.
type SlotNotification struct {
	Slot       uint64
	ParentSlot uint64
	RootSlot   uint64
}

// Block is the fully decoded block resolved by a Fetcher for one slot.
// Slot is the slot number the Fetcher requested getBlock with; the
// upstream response itself carries no slot field (it is the request
// parameter), so the Fetcher stamps it on after a successful fetch.
type Block struct {
	Slot              uint64
	Blockhash         string
	PreviousBlockhash string
	ParentSlot        uint64
	// BlockTime is unix seconds; 0 is the sentinel for "missing".
	BlockTime int64
	// BlockHeight is 0 if missing.
	BlockHeight  int64
	Transactions []EncodedTransaction
}

// EncodedTransaction is one transaction inside a Block, in whatever
// encoding the upstream node's getBlock response used.
type EncodedTransaction struct {
	// Signatures[0], if present, is the canonical signature.
	Signatures []string
	// AccountKeys is the base58 pubkeys the transaction's message
	// references, already projected out of either the "raw" or the
	// "parsed" message variant by the RPC decode layer.
	AccountKeys []string
	Meta        *TransactionMeta
}

// TransactionMeta carries the subset of transaction metadata the
// pipeline's token-balance decode path consumes. It is never required
// for the core row shape.
type TransactionMeta struct {
	Err               interface{}
	Fee               uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token balance snapshot attached to transaction
// meta; decoded best-effort, never persisted.
type TokenBalance struct {
	Mint     string
	Owner    string
	Amount   float64
	Decimals uint8
}

// AccountTuple is the persisted unit: one row per (transaction, account)
// pair produced from a Block.
type AccountTuple struct {
	Blockhash string
	Slot      int64
	BlockTime int64
	Signature string
	Account   string
}

// Batch is every AccountTuple produced from exactly one Block. All
// tuples in a Batch share (Blockhash, Slot, BlockTime) and commit
// atomically as one SQL transaction.
type Batch struct {
	Blockhash string
	Slot      int64
	BlockTime int64
	Tuples    []AccountTuple
}
