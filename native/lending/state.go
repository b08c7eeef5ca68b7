package lending

import "lendnet/crypto"

// State is the persistence boundary for the lending core. Reads hand back
// records that the engine may freely mutate in scope; nothing reaches storage
// until the engine submits a single Changeset, which the implementation must
// apply atomically.
type State interface {
	// Pool returns the pool for the asset, or nil when it does not exist.
	Pool(asset AssetID) (*Pool, error)
	// UserSupply returns the supply position for (asset, user), or nil.
	UserSupply(asset AssetID, addr crypto.Address) (*Position, error)
	// UserDebt returns the debt position for (asset, user), or nil.
	UserDebt(asset AssetID, addr crypto.Address) (*Position, error)
	// SupplySet lists the assets in which the user holds a nonzero supply.
	SupplySet(addr crypto.Address) ([]AssetID, error)
	// DebtSet lists the assets in which the user holds a nonzero debt.
	DebtSet(addr crypto.Address) ([]AssetID, error)
	// Apply commits every mutation in the changeset or none of them.
	Apply(cs *Changeset) error
}

type positionKey struct {
	asset AssetID
	addr  string
}

type positionChange struct {
	asset AssetID
	addr  crypto.Address
	pos   *Position // nil marks deletion
}

type setChange struct {
	addr   crypto.Address
	assets []AssetID
}

// Changeset accumulates the mutations of one engine call. The engine threads a
// single in-scope handle per touched record through the whole call and stages
// the final value here exactly once, so a failure at any step simply discards
// the changeset.
type Changeset struct {
	pools      map[AssetID]*Pool
	supplies   map[positionKey]*positionChange
	debts      map[positionKey]*positionChange
	supplySets map[string]*setChange
	debtSets   map[string]*setChange
}

// NewChangeset returns an empty changeset.
func NewChangeset() *Changeset {
	return &Changeset{
		pools:      make(map[AssetID]*Pool),
		supplies:   make(map[positionKey]*positionChange),
		debts:      make(map[positionKey]*positionChange),
		supplySets: make(map[string]*setChange),
		debtSets:   make(map[string]*setChange),
	}
}

func addrKey(addr crypto.Address) string {
	return string(addr.Prefix()) + "/" + string(addr.Bytes())
}

// PutPool stages the final state of a pool.
func (cs *Changeset) PutPool(pool *Pool) {
	cs.pools[pool.Asset] = pool
}

// PutSupply stages the final supply position for (asset, user).
func (cs *Changeset) PutSupply(asset AssetID, addr crypto.Address, pos *Position) {
	cs.supplies[positionKey{asset, addrKey(addr)}] = &positionChange{asset: asset, addr: addr, pos: pos}
}

// DeleteSupply stages removal of the supply position for (asset, user).
func (cs *Changeset) DeleteSupply(asset AssetID, addr crypto.Address) {
	cs.supplies[positionKey{asset, addrKey(addr)}] = &positionChange{asset: asset, addr: addr}
}

// PutDebt stages the final debt position for (asset, user).
func (cs *Changeset) PutDebt(asset AssetID, addr crypto.Address, pos *Position) {
	cs.debts[positionKey{asset, addrKey(addr)}] = &positionChange{asset: asset, addr: addr, pos: pos}
}

// DeleteDebt stages removal of the debt position for (asset, user).
func (cs *Changeset) DeleteDebt(asset AssetID, addr crypto.Address) {
	cs.debts[positionKey{asset, addrKey(addr)}] = &positionChange{asset: asset, addr: addr}
}

// PutSupplySet stages the user's supply participation set.
func (cs *Changeset) PutSupplySet(addr crypto.Address, assets []AssetID) {
	cs.supplySets[addrKey(addr)] = &setChange{addr: addr, assets: assets}
}

// PutDebtSet stages the user's debt participation set.
func (cs *Changeset) PutDebtSet(addr crypto.Address, assets []AssetID) {
	cs.debtSets[addrKey(addr)] = &setChange{addr: addr, assets: assets}
}
