package lending

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"lendnet/crypto"
	"lendnet/storage"
)

const (
	poolKeyPrefix      = "lending/pool/"
	supplyKeyPrefix    = "lending/supply/"
	debtKeyPrefix      = "lending/debt/"
	supplySetKeyPrefix = "lending/supplyset/"
	debtSetKeyPrefix   = "lending/debtset/"
)

// PersistentState stores pools, positions and participation sets in a
// key-value database. Records are RLP encoded and every changeset lands in a
// single atomic batch.
type PersistentState struct {
	db storage.Database
}

// NewPersistentState wraps the database.
func NewPersistentState(db storage.Database) *PersistentState {
	return &PersistentState{db: db}
}

func poolKey(asset AssetID) []byte {
	key := make([]byte, len(poolKeyPrefix)+4)
	copy(key, poolKeyPrefix)
	binary.BigEndian.PutUint32(key[len(poolKeyPrefix):], uint32(asset))
	return key
}

func positionKeyBytes(prefix string, asset AssetID, addr crypto.Address) []byte {
	key := make([]byte, 0, len(prefix)+4+1+len(addr.Prefix())+1+len(addr.Bytes()))
	key = append(key, prefix...)
	var assetBytes [4]byte
	binary.BigEndian.PutUint32(assetBytes[:], uint32(asset))
	key = append(key, assetBytes[:]...)
	key = append(key, '/')
	key = append(key, addr.Prefix()...)
	key = append(key, '/')
	key = append(key, addr.Bytes()...)
	return key
}

func setKeyBytes(prefix string, addr crypto.Address) []byte {
	key := make([]byte, 0, len(prefix)+len(addr.Prefix())+1+len(addr.Bytes()))
	key = append(key, prefix...)
	key = append(key, addr.Prefix()...)
	key = append(key, '/')
	key = append(key, addr.Bytes()...)
	return key
}

// Pool loads the pool record for the asset, or nil when absent.
func (s *PersistentState) Pool(asset AssetID) (*Pool, error) {
	raw, err := s.db.Get(poolKey(asset))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pool := new(Pool)
	if err := rlp.DecodeBytes(raw, pool); err != nil {
		return nil, fmt.Errorf("decode pool %d: %w", asset, err)
	}
	return pool, nil
}

// UserSupply loads the supply position for (asset, user), or nil when absent.
func (s *PersistentState) UserSupply(asset AssetID, addr crypto.Address) (*Position, error) {
	return s.position(positionKeyBytes(supplyKeyPrefix, asset, addr))
}

// UserDebt loads the debt position for (asset, user), or nil when absent.
func (s *PersistentState) UserDebt(asset AssetID, addr crypto.Address) (*Position, error) {
	return s.position(positionKeyBytes(debtKeyPrefix, asset, addr))
}

func (s *PersistentState) position(key []byte) (*Position, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pos := new(Position)
	if err := rlp.DecodeBytes(raw, pos); err != nil {
		return nil, fmt.Errorf("decode position: %w", err)
	}
	return pos, nil
}

// SupplySet lists the assets with a nonzero supply position for the user.
func (s *PersistentState) SupplySet(addr crypto.Address) ([]AssetID, error) {
	return s.assetSet(setKeyBytes(supplySetKeyPrefix, addr))
}

// DebtSet lists the assets with a nonzero debt position for the user.
func (s *PersistentState) DebtSet(addr crypto.Address) ([]AssetID, error) {
	return s.assetSet(setKeyBytes(debtSetKeyPrefix, addr))
}

func (s *PersistentState) assetSet(key []byte) ([]AssetID, error) {
	raw, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var set []AssetID
	if err := rlp.DecodeBytes(raw, &set); err != nil {
		return nil, fmt.Errorf("decode asset set: %w", err)
	}
	return set, nil
}

// Apply encodes every staged mutation and writes them through one atomic
// database batch.
func (s *PersistentState) Apply(cs *Changeset) error {
	if cs == nil {
		return nil
	}
	var ops []storage.BatchOp
	for asset, pool := range cs.pools {
		encoded, err := rlp.EncodeToBytes(pool)
		if err != nil {
			return fmt.Errorf("encode pool %d: %w", asset, err)
		}
		ops = append(ops, storage.BatchOp{Key: poolKey(asset), Value: encoded})
	}
	for _, change := range cs.supplies {
		op, err := positionOp(positionKeyBytes(supplyKeyPrefix, change.asset, change.addr), change.pos)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, change := range cs.debts {
		op, err := positionOp(positionKeyBytes(debtKeyPrefix, change.asset, change.addr), change.pos)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, change := range cs.supplySets {
		op, err := setOp(setKeyBytes(supplySetKeyPrefix, change.addr), change.assets)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	for _, change := range cs.debtSets {
		op, err := setOp(setKeyBytes(debtSetKeyPrefix, change.addr), change.assets)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	return s.db.WriteBatch(ops)
}

func positionOp(key []byte, pos *Position) (storage.BatchOp, error) {
	if pos == nil {
		return storage.BatchOp{Key: key}, nil
	}
	encoded, err := rlp.EncodeToBytes(pos)
	if err != nil {
		return storage.BatchOp{}, fmt.Errorf("encode position: %w", err)
	}
	return storage.BatchOp{Key: key, Value: encoded}, nil
}

func setOp(key []byte, set []AssetID) (storage.BatchOp, error) {
	if len(set) == 0 {
		return storage.BatchOp{Key: key}, nil
	}
	encoded, err := rlp.EncodeToBytes(set)
	if err != nil {
		return storage.BatchOp{}, fmt.Errorf("encode asset set: %w", err)
	}
	return storage.BatchOp{Key: key, Value: encoded}, nil
}
