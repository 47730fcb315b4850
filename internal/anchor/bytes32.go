package anchor

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// ToBytes32 переводит идентификатор в bytes32 для контракта.
//
// Строка вида 0x + 64 hex используется как есть (например keccak/sha256 CID),
// любая другая строка хешируется keccak256.
func ToBytes32(id string) [32]byte {
	var out [32]byte

	trimmed := strings.TrimSpace(id)
	if raw, ok := strings.CutPrefix(trimmed, "0x"); ok && len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			copy(out[:], decoded)
			return out
		}
	}

	copy(out[:], crypto.Keccak256([]byte(trimmed)))
	return out
}
