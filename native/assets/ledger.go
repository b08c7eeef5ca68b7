package assets

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/rlp"

	"lendnet/crypto"
	"lendnet/native/lending"
	"lendnet/storage"
)

var (
	// ErrInsufficientBalance rejects a transfer exceeding the sender's funds.
	ErrInsufficientBalance = errors.New("assets: insufficient balance")
	// ErrInvalidAmount rejects nil or negative amounts.
	ErrInvalidAmount = errors.New("assets: amount must not be negative")
)

const balanceKeyPrefix = "assets/balance/"

// Ledger is the fungible multi-asset balance store. It is the sole owner of
// transferable value; the lending core mirrors its transfers but never holds
// balances itself.
type Ledger struct {
	db storage.Database
}

// NewLedger wraps the database.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func balanceKey(asset lending.AssetID, addr crypto.Address) []byte {
	key := make([]byte, 0, len(balanceKeyPrefix)+4+1+len(addr.Prefix())+1+len(addr.Bytes()))
	key = append(key, balanceKeyPrefix...)
	var assetBytes [4]byte
	binary.BigEndian.PutUint32(assetBytes[:], uint32(asset))
	key = append(key, assetBytes[:]...)
	key = append(key, '/')
	key = append(key, addr.Prefix()...)
	key = append(key, '/')
	key = append(key, addr.Bytes()...)
	return key
}

// Balance returns the holder's balance in the asset, zero when no record
// exists.
func (l *Ledger) Balance(asset lending.AssetID, who crypto.Address) (*big.Int, error) {
	raw, err := l.db.Get(balanceKey(asset, who))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance := new(big.Int)
	if err := rlp.DecodeBytes(raw, balance); err != nil {
		return nil, fmt.Errorf("decode balance: %w", err)
	}
	return balance, nil
}

// Transfer moves amount of the asset between accounts. Both balance updates
// land in one atomic batch; a zero amount is a no-op.
func (l *Ledger) Transfer(from crypto.Address, asset lending.AssetID, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 || from.Equal(to) {
		return nil
	}
	fromBalance, err := l.Balance(asset, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toBalance, err := l.Balance(asset, to)
	if err != nil {
		return err
	}
	fromBalance = new(big.Int).Sub(fromBalance, amount)
	toBalance = new(big.Int).Add(toBalance, amount)
	ops, err := balanceOps(asset, from, fromBalance, to, toBalance)
	if err != nil {
		return err
	}
	return l.db.WriteBatch(ops)
}

// Mint credits freshly issued units of the asset to the recipient. Used by
// genesis seeding and tests; the lending core never mints.
func (l *Ledger) Mint(asset lending.AssetID, to crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	balance, err := l.Balance(asset, to)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	encoded, err := rlp.EncodeToBytes(balance)
	if err != nil {
		return fmt.Errorf("encode balance: %w", err)
	}
	return l.db.Put(balanceKey(asset, to), encoded)
}

func balanceOps(asset lending.AssetID, from crypto.Address, fromBalance *big.Int, to crypto.Address, toBalance *big.Int) ([]storage.BatchOp, error) {
	encodedFrom, err := rlp.EncodeToBytes(fromBalance)
	if err != nil {
		return nil, fmt.Errorf("encode balance: %w", err)
	}
	encodedTo, err := rlp.EncodeToBytes(toBalance)
	if err != nil {
		return nil, fmt.Errorf("encode balance: %w", err)
	}
	return []storage.BatchOp{
		{Key: balanceKey(asset, from), Value: encodedFrom},
		{Key: balanceKey(asset, to), Value: encodedTo},
	}, nil
}
