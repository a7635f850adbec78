/*
Copyright © 2018 the LaSRC authors.
This file is part of LaSRC.

LaSRC is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

LaSRC is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with LaSRC.  If not, see <http://www.gnu.org/licenses/>.
*/

package lasrc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// epsTiny is the monotonicity cutoff for the intrinsic reflectance
// sweep: the cubic fit stops at the last AOT sample where the table
// is still strictly increasing by more than this.
const epsTiny = 1e-6

// bandCoeffs caches, per band, the atmospheric quantities evaluated
// on the AOT grid at scene-center conditions together with their
// cubic fits, so the per-pixel correction never touches the lookup
// table.
type bandCoeffs struct {
	roatmArr  [NReflBand][]float64
	ttatmgArr [NReflBand][]float64
	satmArr   [NReflBand][]float64

	roatmCoef  [NReflBand][4]float64
	ttatmgCoef [NReflBand][4]float64
	satmCoef   [NReflBand][4]float64

	tgo         [NReflBand]float64
	normextP0A3 [NReflBand]float64
	iaMax       [NReflBand]int
}

// ComputeCoefficients sweeps the kernel over the AOT grid at
// scene-center pressure, ozone and water vapor for every reflective
// band, and fits third-order polynomials in AOT to the intrinsic
// reflectance, total transmission and spherical albedo.
func ComputeCoefficients() SceneManipulator {
	return func(s *Scene) error {
		c := new(bandCoeffs)
		for ib := 0; ib < NReflBand; ib++ {
			c.roatmArr[ib] = make([]float64, NAot)
			c.ttatmgArr[ib] = make([]float64, NAot)
			c.satmArr[ib] = make([]float64, NAot)
			for ia := 0; ia < NAot; ia++ {
				a, err := s.atmcorlamb2(ib, s.Pres, Aot550nm[ia], HighEps)
				if err != nil {
					return fmt.Errorf("lasrc.ComputeCoefficients: %v", err)
				}
				c.roatmArr[ib][ia] = a.roatm
				c.ttatmgArr[ib][ia] = a.ttatmg
				c.satmArr[ib][ia] = a.satm
				c.tgo[ib] = a.tgo // AOT-independent
			}
			c.normextP0A3[ib] = s.Lut.Normext.Get(ib, 0, 3)

			// The intrinsic reflectance saturates at high AOT; fit
			// only the monotone head of the sweep.
			c.iaMax[ib] = NAot - 1
			for ia := 1; ia < NAot; ia++ {
				if c.roatmArr[ib][ia]-c.roatmArr[ib][ia-1] <= epsTiny {
					c.iaMax[ib] = ia - 1
					break
				}
			}

			var err error
			c.roatmCoef[ib], err = get3rdOrderPolyCoeff(
				Aot550nm[:c.iaMax[ib]+1], c.roatmArr[ib][:c.iaMax[ib]+1])
			if err != nil {
				return fmt.Errorf("lasrc.ComputeCoefficients: band %d roatm: %v", ib, err)
			}
			c.ttatmgCoef[ib], err = get3rdOrderPolyCoeff(Aot550nm, c.ttatmgArr[ib])
			if err != nil {
				return fmt.Errorf("lasrc.ComputeCoefficients: band %d ttatmg: %v", ib, err)
			}
			c.satmCoef[ib], err = get3rdOrderPolyCoeff(Aot550nm, c.satmArr[ib])
			if err != nil {
				return fmt.Errorf("lasrc.ComputeCoefficients: band %d satm: %v", ib, err)
			}
		}
		s.coef = c
		return nil
	}
}

// get3rdOrderPolyCoeff fits y = c0 + c1·x + c2·x² + c3·x³ by least
// squares. The fit is solved in double precision through QR, so
// identical inputs give identical coefficients.
func get3rdOrderPolyCoeff(x, y []float64) ([4]float64, error) {
	var coef [4]float64
	if len(x) != len(y) || len(x) < 4 {
		return coef, fmt.Errorf("lasrc.get3rdOrderPolyCoeff: need at least 4 samples, got %d", len(x))
	}
	a := mat.NewDense(len(x), 4, nil)
	b := mat.NewVecDense(len(x), nil)
	for i, xi := range x {
		a.Set(i, 0, 1)
		a.Set(i, 1, xi)
		a.Set(i, 2, xi*xi)
		a.Set(i, 3, xi*xi*xi)
		b.SetVec(i, y[i])
	}
	var sol mat.Dense
	if err := sol.Solve(a, b); err != nil {
		return coef, fmt.Errorf("lasrc.get3rdOrderPolyCoeff: %v", err)
	}
	for i := 0; i < 4; i++ {
		coef[i] = sol.At(i, 0)
	}
	return coef, nil
}

// polyEval evaluates the cubic by Horner's rule.
func polyEval(c [4]float64, x float64) float64 {
	return c[0] + x*(c[1]+x*(c[2]+x*c[3]))
}

// coefAt evaluates the cached polynomials for band ib at aerosol
// state (raot, eps). The intrinsic reflectance and spherical albedo
// are evaluated at the band-effective optical thickness from the
// Ångström scaling; the transmission at the raw AOT. Evaluation
// points clamp to the fitted range.
func (s *Scene) coefAt(ib int, raot, eps float64) (tgo, roatm, ttatmg, satm float64) {
	c := s.coef
	aotEff := raot * c.normextP0A3[ib] *
		math.Pow(550/bandWavelength[ib], eps-HighEps)
	if aotEff < Aot550nm[0] {
		aotEff = Aot550nm[0]
	} else if max := Aot550nm[c.iaMax[ib]]; aotEff > max {
		aotEff = max
	}
	aotT := raot
	if aotT < Aot550nm[0] {
		aotT = Aot550nm[0]
	} else if max := Aot550nm[NAot-1]; aotT > max {
		aotT = max
	}
	tgo = c.tgo[ib]
	roatm = polyEval(c.roatmCoef[ib], aotEff)
	ttatmg = polyEval(c.ttatmgCoef[ib], aotT)
	satm = polyEval(c.satmCoef[ib], aotEff)
	return tgo, roatm, ttatmg, satm
}

// atmcorlamb2New is the fast per-pixel correction path: it inverts
// one TOA reflectance to surface reflectance using the cached
// polynomials at the pixel's aerosol state.
func (s *Scene) atmcorlamb2New(ib int, raot, eps, rotoa float64) float64 {
	tgo, roatm, ttatmg, satm := s.coefAt(ib, raot, eps)
	return lambertian(rotoa, tgo, roatm, ttatmg, satm)
}

// forwardTOANew predicts the TOA reflectance of a Lambertian surface
// using the cached polynomials at the given aerosol state.
func (s *Scene) forwardTOANew(ib int, raot, eps, roslamb float64) float64 {
	tgo, roatm, ttatmg, satm := s.coefAt(ib, raot, eps)
	return forwardTOA(roslamb, tgo, roatm, ttatmg, satm)
}
