// Package cpmm implements the constant-product market maker (CPMM)
// used to price trades in binary YES/NO markets.
//
// The pricing rule holds yesPool * noPool = k across a trade, modulo
// fee retention: the fee is skimmed from the trade input before the
// pricing formula but stays in the pools, so k is non-decreasing.
// A side's price in cents is the opposite pool's share of the total:
//
//	yesPriceCents = noPool / (yesPool + noPool) * 100
//
// All pool and share quantities use shopspring/decimal — never float64
// for money. The sell path needs a square root, which decimal does not
// provide; that one step runs through float64 and the result is
// immediately converted back to decimal.
package cpmm

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

var (
	// ErrNonPositiveAmount is returned for zero or negative trade input.
	// Inputs are rejected at the boundary, never silently clamped.
	ErrNonPositiveAmount = errors.New("cpmm: amount must be positive")

	// ErrPoolFloor is returned when a trade would drive either pool
	// below MinPool. Pools asymptote; they never reach zero.
	ErrPoolFloor = errors.New("cpmm: trade would drain pool below minimum")

	// ErrInvalidFee is returned when the fee is outside [0, 10000) bps.
	ErrInvalidFee = errors.New("cpmm: fee basis points out of range")

	// MinPool is the reserve floor for either pool. Trades that would
	// push a pool below this are rejected, which both prevents
	// division blow-up near the asymptote and makes front-running the
	// tail of the curve unprofitable.
	MinPool = decimal.NewFromFloat(0.0001)

	// Scale is the number of decimal places share and collateral
	// results are rounded to.
	Scale int32 = 8
)

const bpsDenominator = 10_000

// BuyResult is the outcome of pricing a buy against the pools.
type BuyResult struct {
	Shares     decimal.Decimal // outcome shares credited to the buyer
	Fee        decimal.Decimal // collateral retained in the pools
	NewYesPool decimal.Decimal
	NewNoPool  decimal.Decimal
}

// SellResult is the outcome of pricing a sell against the pools.
type SellResult struct {
	Gross      decimal.Decimal // collateral value before the fee skim
	Payout     decimal.Decimal // collateral returned to the seller
	Fee        decimal.Decimal
	NewYesPool decimal.Decimal
	NewNoPool  decimal.Decimal
}

// EstimateBuy prices a buy without computing post-trade pools. Pure;
// suitable for the read surface.
func EstimateBuy(yesPool, noPool decimal.Decimal, side model.Side, collateralIn decimal.Decimal, feeBps int64) (decimal.Decimal, error) {
	res, err := Buy(yesPool, noPool, side, collateralIn, feeBps)
	if err != nil {
		return decimal.Zero, err
	}
	return res.Shares, nil
}

// Buy prices a buy of `side` shares for collateralIn against the
// pools. The fee is skimmed from the input before the constant-product
// formula; the pool update uses the gross input so the fee is retained
// and k never decreases.
func Buy(yesPool, noPool decimal.Decimal, side model.Side, collateralIn decimal.Decimal, feeBps int64) (*BuyResult, error) {
	if feeBps < 0 || feeBps >= bpsDenominator {
		return nil, ErrInvalidFee
	}
	if collateralIn.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}

	sidePool, oppPool := orient(yesPool, noPool, side)

	fee := collateralIn.Mul(decimal.NewFromInt(feeBps)).Div(decimal.NewFromInt(bpsDenominator)).Round(Scale)
	net := collateralIn.Sub(fee)

	// Both pools conceptually receive the input, then the invariant is
	// solved for the post-trade side reserve:
	//   shares = net + sidePool - sidePool*oppPool/(oppPool+net)
	k := sidePool.Mul(oppPool)
	newSideReserve := k.Div(oppPool.Add(net)).Round(Scale)
	shares := net.Add(sidePool).Sub(newSideReserve)

	newSidePool := sidePool.Add(collateralIn).Sub(shares)
	newOppPool := oppPool.Add(collateralIn)

	if newSidePool.LessThan(MinPool) || newOppPool.LessThan(MinPool) {
		return nil, ErrPoolFloor
	}

	newYes, newNo := restore(newSidePool, newOppPool, side)
	return &BuyResult{
		Shares:     shares.Round(Scale),
		Fee:        fee,
		NewYesPool: newYes,
		NewNoPool:  newNo,
	}, nil
}

// EstimateSell prices a sell without computing post-trade pools.
func EstimateSell(yesPool, noPool decimal.Decimal, side model.Side, sharesIn decimal.Decimal, feeBps int64) (decimal.Decimal, error) {
	res, err := Sell(yesPool, noPool, side, sharesIn, feeBps)
	if err != nil {
		return decimal.Zero, err
	}
	return res.Payout, nil
}

// Sell runs the constant-product invariant backward: it finds the
// gross collateral g such that returning sharesIn to the side pool and
// removing g from both sides preserves k, then skims the fee from the
// gross proceeds. The fee portion stays in the opposite pool, so k is
// again non-decreasing.
func Sell(yesPool, noPool decimal.Decimal, side model.Side, sharesIn decimal.Decimal, feeBps int64) (*SellResult, error) {
	if feeBps < 0 || feeBps >= bpsDenominator {
		return nil, ErrInvalidFee
	}
	if sharesIn.LessThanOrEqual(decimal.Zero) {
		return nil, ErrNonPositiveAmount
	}

	sidePool, oppPool := orient(yesPool, noPool, side)

	// (sidePool + sharesIn - g)(oppPool - g) = sidePool*oppPool
	// → g² - g(sidePool + sharesIn + oppPool) + sharesIn*oppPool = 0
	// Smaller quadratic root; sqrt via float64, result back to decimal.
	b := sidePool.Add(sharesIn).Add(oppPool).InexactFloat64()
	c := sharesIn.Mul(oppPool).InexactFloat64()
	disc := b*b - 4*c
	if disc < 0 {
		disc = 0
	}
	gross := decimal.NewFromFloat((b - math.Sqrt(disc)) / 2).Round(Scale)

	fee := gross.Mul(decimal.NewFromInt(feeBps)).Div(decimal.NewFromInt(bpsDenominator)).Round(Scale)
	payout := gross.Sub(fee)

	newSidePool := sidePool.Add(sharesIn).Sub(gross)
	newOppPool := oppPool.Sub(payout)

	if newSidePool.LessThan(MinPool) || newOppPool.LessThan(MinPool) {
		return nil, ErrPoolFloor
	}

	newYes, newNo := restore(newSidePool, newOppPool, side)
	return &SellResult{
		Gross:      gross,
		Payout:     payout,
		Fee:        fee,
		NewYesPool: newYes,
		NewNoPool:  newNo,
	}, nil
}

// YesPriceCents derives the YES price from the reserves. A side's
// price rises as its pool shrinks relative to the other. Clamped to
// [1, 99]: pools never fully drain, so neither outcome is ever free or
// certain.
func YesPriceCents(yesPool, noPool decimal.Decimal) int64 {
	total := yesPool.Add(noPool)
	if total.IsZero() {
		return 50
	}
	cents := noPool.Div(total).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	if cents < 1 {
		return 1
	}
	if cents > 99 {
		return 99
	}
	return cents
}

// NoPriceCents is the complement; the two always sum to 100.
func NoPriceCents(yesPool, noPool decimal.Decimal) int64 {
	return 100 - YesPriceCents(yesPool, noPool)
}

// orient maps (yesPool, noPool) to (sidePool, oppPool) for the traded side.
func orient(yesPool, noPool decimal.Decimal, side model.Side) (decimal.Decimal, decimal.Decimal) {
	if side == model.SideYes {
		return yesPool, noPool
	}
	return noPool, yesPool
}

// restore maps (sidePool, oppPool) back to (yesPool, noPool).
func restore(sidePool, oppPool decimal.Decimal, side model.Side) (decimal.Decimal, decimal.Decimal) {
	if side == model.SideYes {
		return sidePool, oppPool
	}
	return oppPool, sidePool
}
