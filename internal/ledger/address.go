package ledger

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// DeriveAddress returns the program-derived address for the given seeds. The
// derivation is the standard Solana one, so any client can reproduce record
// addresses offline.
func DeriveAddress(program solana.PublicKey, seeds ...[]byte) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%w: %v", ErrInvalidSeeds, err)
	}
	return addr, nil
}

// MustDeriveAddress is DeriveAddress for constant seed sets.
func MustDeriveAddress(program solana.PublicKey, seeds ...[]byte) solana.PublicKey {
	addr, err := DeriveAddress(program, seeds...)
	if err != nil {
		panic(err)
	}
	return addr
}

// U64Seed encodes v as 8 little-endian bytes.
func U64Seed(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// ParseAddress decodes a base58 identity.
func ParseAddress(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("ledger: parse address %q: %w", s, err)
	}
	return pk, nil
}
