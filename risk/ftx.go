package risk

import (
	"math"

	"github.com/rustyeddy/marginguard/rules"
)

// FTX continuous margin model.
//
// Position MMF = max(3%, 0.6 · IMF factor · sqrt(size)) · MMF weight
// Position IMF = max(base IMF, IMF factor · sqrt(size)) · IMF weight,
// capped for longs at 1 + fee rate · size.

const (
	ftxMinMMF      = 0.03
	ftxACMFSpread  = 0.06
	ftxMMFOfFactor = 0.6
)

// BaseIMF is 1 / leverage rounded to 3 decimals.
func BaseIMF(leverage float64) float64 {
	if leverage <= 0 {
		return 1
	}
	return round(1/leverage, 3)
}

// PositionIMF is undefined for a flat position.
func PositionIMF(p rules.FtxParams, qty, leverage, feeRate float64) Metric {
	side := SideOf(qty)
	if side == Flat {
		return Undefined
	}
	size := math.Abs(qty)
	imf := math.Max(BaseIMF(leverage), p.IMFFactor*math.Sqrt(size)) * p.IMFWeight
	if side == Long {
		imf = math.Min(imf, 1+feeRate*size)
	}
	return Defined(imf)
}

// PositionMMF is undefined for a flat position.
func PositionMMF(p rules.FtxParams, qty float64) Metric {
	if qty == 0 {
		return Undefined
	}
	return Defined(math.Max(ftxMinMMF, ftxMMFOfFactor*p.IMFFactor*math.Sqrt(math.Abs(qty))) * p.MMFWeight)
}

// FtxMaintenanceMargin is notional × position MMF.
func FtxMaintenanceMargin(p rules.FtxParams, qty, notional float64) float64 {
	return math.Abs(notional) * PositionMMF(p, qty).Or(0)
}

// CollateralUsed is position IMF × notional.
func CollateralUsed(imf Metric, notional float64) float64 {
	return imf.Or(0) * math.Abs(notional)
}

// MaintenanceCollateral is notional × position MMF.
func MaintenanceCollateral(notional float64, mmf Metric) float64 {
	return math.Abs(notional) * mmf.Or(0)
}

// MarginFraction is capital / notional, rounded to 6 decimals.
func MarginFraction(capital, notional float64) Metric {
	if notional == 0 {
		return Undefined
	}
	return Defined(round(capital/math.Abs(notional), 6))
}

// ACMF is the auto close margin fraction: max(mmf/2, mmf − 6%).
func ACMF(accountMMF Metric) Metric {
	if !accountMMF.Valid {
		return Undefined
	}
	m := accountMMF.Value
	return Defined(math.Max(m/2, m-ftxACMFSpread))
}

// PMPD is the position's share of the account's maintenance collateral,
// scaled by total account value over position notional.
func PMPD(maintenanceCollateral, accountMaintenanceCollateral, totalAccountValue, notional float64) Metric {
	if accountMaintenanceCollateral == 0 || notional == 0 {
		return Undefined
	}
	return Defined(maintenanceCollateral / accountMaintenanceCollateral * totalAccountValue / math.Abs(notional))
}

// PositionZeroPrice is mark·(1 ∓ pmpd).
func PositionZeroPrice(mark float64, pmpd Metric, side Side) Metric {
	return ZeroPrice(mark, pmpd, side)
}

// LiquidationDistance is (mf − account MMF) / mf.
func LiquidationDistance(marginFraction, accountMMF Metric) Metric {
	if !marginFraction.Valid || !accountMMF.Valid || marginFraction.Value == 0 {
		return Undefined
	}
	return Defined((marginFraction.Value - accountMMF.Value) / marginFraction.Value)
}
