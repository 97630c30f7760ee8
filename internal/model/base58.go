package model

import "github.com/mr-tron/base58"

// ValidAccountKey reports whether s decodes as base58, the encoding
// every Solana pubkey and signature uses on the wire. The empty string
// is not a valid key. The processor does not call this: it persists
// every non-empty account key as received.
func ValidAccountKey(s string) bool {
	if s == "" {
		return false
	}
	_, err := base58.Decode(s)
	return err == nil
}
