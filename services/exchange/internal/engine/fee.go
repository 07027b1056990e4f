package engine

import "math/bits"

// MaxFeeRateBps caps the trading fee at 10%.
const MaxFeeRateBps = 1000

// Fee computes the platform fee for a trade, truncating toward zero so that
// fee + (price - fee) == price for every price and rate in range. The product
// is carried through a 128-bit intermediate so prices near the uint64 ceiling
// do not wrap.
func Fee(price, rateBps uint64) uint64 {
	hi, lo := bits.Mul64(price, rateBps)
	fee, _ := bits.Div64(hi, lo, 10000)
	return fee
}
