package lending

import "math/big"

var (
	ray     = mustBigInt("1000000000000000000000000000") // 1e27 fixed point
	halfRay = new(big.Int).Rsh(ray, 1)
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

// rayFromRat converts an arbitrary rational into ray fixed point with half-up
// rounding.
func rayFromRat(r *big.Rat) *big.Int {
	if r == nil {
		return big.NewInt(0)
	}
	scaled := new(big.Rat).Mul(r, new(big.Rat).SetInt(ray))
	num := scaled.Num()
	den := scaled.Denom()
	if den.Sign() == 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Quo(new(big.Int).Add(num, halfUp(den)), den)
}

// ratFromRay is the inverse of rayFromRat.
func ratFromRay(v *big.Int) *big.Rat {
	if v == nil {
		return new(big.Rat)
	}
	return new(big.Rat).SetFrac(new(big.Int).Set(v), new(big.Int).Set(ray))
}

// rayMul multiplies two ray-scaled values with half-up rounding.
func rayMul(a, b *big.Int) *big.Int {
	if a == nil || b == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(a, b)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// rayMulInt applies a ray-scaled factor to an integer amount.
func rayMulInt(factor, amount *big.Int) *big.Int {
	if factor == nil || amount == nil {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, factor)
	product.Add(product, halfRay)
	product.Quo(product, ray)
	return product
}

// mulDiv computes amount * num / den with half-up rounding. It is the rebase
// primitive: num is the pool's current index and den the index snapshot stored
// on the position.
func mulDiv(amount, num, den *big.Int) *big.Int {
	if amount == nil || num == nil || den == nil || den.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, num)
	product.Add(product, halfUp(den))
	product.Quo(product, den)
	return product
}

// ratMulInt multiplies an integer amount by a rational factor, truncating the
// result toward zero. Used for oracle price conversions where rounding in the
// protocol's favour is the safe default.
func ratMulInt(r *big.Rat, amount *big.Int) *big.Int {
	if r == nil || amount == nil || amount.Sign() == 0 {
		return big.NewInt(0)
	}
	product := new(big.Rat).Mul(r, new(big.Rat).SetInt(amount))
	return new(big.Int).Quo(product.Num(), product.Denom())
}

// rateFactor builds the linear accrual multiplier 1 + rate*elapsed in ray
// fixed point. Compounding across gaps emerges because successive factors are
// multiplied into the index, not because any single gap compounds.
func rateFactor(rate *big.Rat, elapsed uint32) *big.Int {
	if rate == nil || rate.Sign() == 0 || elapsed == 0 {
		return new(big.Int).Set(ray)
	}
	growth := new(big.Rat).Mul(rate, new(big.Rat).SetUint64(uint64(elapsed)))
	factor := new(big.Rat).Add(big.NewRat(1, 1), growth)
	return rayFromRat(factor)
}

func minBig(values ...*big.Int) *big.Int {
	var out *big.Int
	for _, v := range values {
		if v == nil {
			continue
		}
		if out == nil || v.Cmp(out) < 0 {
			out = v
		}
	}
	if out == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(out)
}

// halfUp returns floor(x/2), the bias added before dividing by x so that a
// remainder of at least half the divisor rounds the quotient up. Using
// ceil(x/2) here would round exact sub-half remainders up for odd divisors and
// shift every exact conversion by one ulp.
func halfUp(x *big.Int) *big.Int {
	if x == nil || x.Sign() <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Rsh(x, 1)
}
