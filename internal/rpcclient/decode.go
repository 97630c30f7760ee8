package rpcclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/serfrae/solder/internal/model"
)

func bytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}

// wireGetBlockResult is the getBlock RPC result shape, commitment
// "confirmed" with transactionDetails "full". Solana nodes emit two
// transaction message variants depending on the client's RPC version:
// a "raw" message with a flat accountKeys array, or a "parsed" message
// with accountKeys as objects carrying {pubkey, signer, writable}.
// The message is kept as raw JSON in the wire struct and resolved to a
// flat list of pubkeys by decodeAccountKeys below, so internal/process
// only ever sees plain account key strings.
type wireGetBlockResult struct {
	Blockhash         string               `json:"blockhash"`
	PreviousBlockhash string               `json:"previousBlockhash"`
	ParentSlot        uint64               `json:"parentSlot"`
	BlockTime         *int64               `json:"blockTime"`
	BlockHeight       *int64               `json:"blockHeight"`
	Transactions      []wireTransaction    `json:"transactions"`
}

type wireTransaction struct {
	Transaction wireTxBody    `json:"transaction"`
	Meta        *wireTxMeta   `json:"meta"`
}

type wireTxBody struct {
	Signatures []string        `json:"signatures"`
	Message    json.RawMessage `json:"message"`
}

type wireTxMeta struct {
	Err               interface{}       `json:"err"`
	Fee               uint64            `json:"fee"`
	PreTokenBalances  []wireTokenBalance `json:"preTokenBalances"`
	PostTokenBalances []wireTokenBalance `json:"postTokenBalances"`
}

type wireTokenBalance struct {
	Mint          string `json:"mint"`
	Owner         string `json:"owner"`
	UITokenAmount struct {
		UIAmount float64 `json:"uiAmount"`
		Decimals uint8   `json:"decimals"`
	} `json:"uiTokenAmount"`
}

// rawMessage is the "raw" transaction message variant: a flat array of
// base58 account key strings.
type rawMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// parsedAccountKey is one entry of the "parsed" transaction message
// variant's accountKeys array.
type parsedAccountKey struct {
	Pubkey string `json:"pubkey"`
}

type parsedMessage struct {
	AccountKeys []parsedAccountKey `json:"accountKeys"`
}

func decodeBlock(raw json.RawMessage) (*model.Block, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("empty getBlock result")
	}
	var wire wireGetBlockResult
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal getBlock result: %w", err)
	}

	block := &model.Block{
		Blockhash:         wire.Blockhash,
		PreviousBlockhash: wire.PreviousBlockhash,
		ParentSlot:        wire.ParentSlot,
		Transactions:      make([]model.EncodedTransaction, 0, len(wire.Transactions)),
	}
	if wire.BlockTime != nil {
		block.BlockTime = *wire.BlockTime
	}
	if wire.BlockHeight != nil {
		block.BlockHeight = *wire.BlockHeight
	}

	for _, tx := range wire.Transactions {
		accountKeys, err := decodeAccountKeys(tx.Transaction.Message)
		if err != nil {
			continue
		}
		encoded := model.EncodedTransaction{
			Signatures:  tx.Transaction.Signatures,
			AccountKeys: accountKeys,
		}
		if tx.Meta != nil {
			encoded.Meta = &model.TransactionMeta{
				Err:               tx.Meta.Err,
				Fee:               tx.Meta.Fee,
				PreTokenBalances:  decodeTokenBalances(tx.Meta.PreTokenBalances),
				PostTokenBalances: decodeTokenBalances(tx.Meta.PostTokenBalances),
			}
		}
		block.Transactions = append(block.Transactions, encoded)
	}

	return block, nil
}

// decodeAccountKeys distinguishes the raw and parsed message variants
// by attempting the flat-string-array shape first, falling back to the
// object-array shape.
func decodeAccountKeys(raw json.RawMessage) ([]string, error) {
	var flat rawMessage
	if err := json.Unmarshal(raw, &flat); err == nil && len(flat.AccountKeys) > 0 {
		return flat.AccountKeys, nil
	}
	var parsed parsedMessage
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("unrecognized transaction message shape: %w", err)
	}
	keys := make([]string, 0, len(parsed.AccountKeys))
	for _, k := range parsed.AccountKeys {
		keys = append(keys, k.Pubkey)
	}
	return keys, nil
}

func decodeTokenBalances(in []wireTokenBalance) []model.TokenBalance {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.TokenBalance, 0, len(in))
	for _, tb := range in {
		out = append(out, model.TokenBalance{
			Mint:     tb.Mint,
			Owner:    tb.Owner,
			Amount:   tb.UITokenAmount.UIAmount,
			Decimals: tb.UITokenAmount.Decimals,
		})
	}
	return out
}
