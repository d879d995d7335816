package fluxupdate

import (
	"math"

	"github.com/mairanteodoro/roman-photoz/internal/errs"
)

// ABZeroPointJy is the flux density of AB magnitude 0, in Jansky. One maggy
// is this flux.
const ABZeroPointJy = 3631.0

// ABMagToMaggies converts an AB magnitude to maggies: 10^(-0.4 m).
func ABMagToMaggies(m float64) float64 {
	return math.Pow(10, -0.4*m)
}

// NanoJanskyToMaggies converts a flux density in nJy to maggies.
func NanoJanskyToMaggies(nJy float64) float64 {
	return nJy * 1e-9 / ABZeroPointJy
}

// Unit is the unit of the reference measurement columns.
type Unit string

const (
	// ABMag columns hold AB magnitudes, as written by simulate-catalog.
	ABMag Unit = "abmag"
	// NanoJansky columns hold flux densities in nJy, as in romanisim
	// segmentation catalogs.
	NanoJansky Unit = "njy"
)

// Valid reports whether u is a known unit. The empty unit means ABMag.
func (u Unit) Valid() bool {
	switch u {
	case "", ABMag, NanoJansky:
		return true
	}
	return false
}

// ToMaggies converts v from u to maggies. Magnitudes must be positive and
// fluxes finite.
func (u Unit) ToMaggies(v float64) (float64, error) {
	switch u {
	case "", ABMag:
		if !(v > 0) {
			return 0, errs.Validation("magnitude %v is not positive", v)
		}
		return ABMagToMaggies(v), nil
	case NanoJansky:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errs.Validation("flux %v is not finite", v)
		}
		return NanoJanskyToMaggies(v), nil
	}
	return 0, errs.Configuration("unknown reference unit %q", string(u))
}
