package crypto

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcutil/bech32"
)

// AddressPrefix defines the human-readable prefix attached to account
// addresses.
type AddressPrefix string

const (
	// AccountPrefix is the prefix used for regular user accounts.
	AccountPrefix AddressPrefix = "lend"
	// ModulePrefix is the prefix used for module-owned custody accounts.
	ModulePrefix AddressPrefix = "lendmod"
)

const addressLength = 20

// Address represents a 20-byte account address with a specific prefix.
type Address struct {
	prefix AddressPrefix
	bytes  []byte
}

// NewAddress wraps the raw bytes with the supplied prefix. The byte slice must
// be exactly 20 bytes long.
func NewAddress(prefix AddressPrefix, b []byte) Address {
	if len(b) != addressLength {
		panic("address must be 20 bytes long")
	}
	cloned := append([]byte(nil), b...)
	return Address{prefix: prefix, bytes: cloned}
}

// String renders the address in bech32 form using its prefix.
func (a Address) String() string {
	conv, err := bech32.ConvertBits(a.bytes, 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(string(a.prefix), conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns the raw 20-byte payload of the address.
func (a Address) Bytes() []byte {
	return a.bytes
}

// Prefix returns the human-readable prefix associated with the address.
func (a Address) Prefix() AddressPrefix {
	return a.prefix
}

// Equal reports whether two addresses share both prefix and payload.
func (a Address) Equal(b Address) bool {
	return a.prefix == b.prefix && bytes.Equal(a.bytes, b.bytes)
}

// DecodeAddress parses a bech32 encoded address string.
func DecodeAddress(addrStr string) (Address, error) {
	prefix, decoded, err := bech32.Decode(addrStr)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 string: %w", err)
	}
	conv, err := bech32.ConvertBits(decoded, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address payload: %w", err)
	}
	if len(conv) != addressLength {
		return Address{}, fmt.Errorf("address must be %d bytes long (got %d)", addressLength, len(conv))
	}
	return Address{prefix: AddressPrefix(prefix), bytes: conv}, nil
}

// ModuleAddress derives a deterministic custody address for a named module by
// padding the name into the 20-byte payload.
func ModuleAddress(name string) Address {
	raw := make([]byte, addressLength)
	copy(raw, name)
	return Address{prefix: ModulePrefix, bytes: raw}
}
