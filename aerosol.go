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
	"log"
	"math"
)

// windowLattice describes the regular lattice of aerosol window
// centers over the scene.
type windowLattice struct {
	w, half        int
	ncy, ncx       int
	nlines, nsamps int
}

func (s *Scene) lattice() windowLattice {
	w := s.Cfg.AeroWindow
	half := s.Cfg.halfWindow()
	lat := windowLattice{w: w, half: half, nlines: s.Nlines, nsamps: s.Nsamps}
	lat.ncy = (s.Nlines - half + w - 1) / w
	if lat.ncy < 1 {
		lat.ncy = 1
	}
	lat.ncx = (s.Nsamps - half + w - 1) / w
	if lat.ncx < 1 {
		lat.ncx = 1
	}
	return lat
}

// row and col return the pixel location of the window center (k, m).
func (lat windowLattice) row(k int) int {
	r := lat.half + k*lat.w
	if r > lat.nlines-1 {
		r = lat.nlines - 1
	}
	return r
}

func (lat windowLattice) col(m int) int {
	c := lat.half + m*lat.w
	if c > lat.nsamps-1 {
		c = lat.nsamps - 1
	}
	return c
}

// SnapshotAerosolBands captures the TOA reflectance of the bands the
// aerosol inversion works from, before the climatology correction
// overwrites Sband.
func SnapshotAerosolBands() SceneManipulator {
	return func(s *Scene) error {
		snap := func(ib int) []float64 {
			out := make([]float64, s.Npix())
			copy(out, s.Sband[ib])
			return out
		}
		s.aerob1 = snap(B1)
		s.aerob2 = snap(B2)
		s.aerob4 = snap(B4)
		s.aerob5 = snap(B5)
		s.aerob7 = snap(B7)
		return nil
	}
}

// InvertAerosol retrieves (AOT, ε) at every aerosol window center.
// Window centers are independent of each other; they are processed
// in parallel with each worker writing only its own centers.
func InvertAerosol() SceneManipulator {
	return func(s *Scene) error {
		if s.coef == nil {
			return fmt.Errorf("lasrc.InvertAerosol: coefficients not computed")
		}
		if s.Anc == nil || !s.Anc.guarded {
			return fmt.Errorf("lasrc.InvertAerosol: ratio climatology not guarded")
		}
		lat := s.lattice()
		err := pixelLoopErr(lat.ncy*lat.ncx, func(c int) error {
			return s.invertWindow(lat, c/lat.ncx, c%lat.ncx)
		})
		if err != nil {
			return err
		}

		var nClear, nWater, nInvalid int
		for k := 0; k < lat.ncy; k++ {
			for m := 0; m < lat.ncx; m++ {
				flag := s.Ipflag[lat.row(k)*s.Nsamps+lat.col(m)]
				switch {
				case flag&IPFlagFill != 0:
				case flag&IPFlagClear != 0 && flag&IPFlagWater != 0:
					nWater++
				case flag&IPFlagClear != 0:
					nClear++
				case flag&IPFlagWater != 0:
					nWater++
				default:
					nInvalid++
				}
			}
		}
		log.Printf("lasrc: aerosol inversion: %d windows (%d clear, %d water, %d invalid)",
			lat.ncy*lat.ncx, nClear, nWater, nInvalid)
		return nil
	}
}

// invertWindow runs the full retrieval for the window centered at
// lattice position (k, m).
func (s *Scene) invertWindow(lat windowLattice, k, m int) error {
	ci, cj := lat.row(k), lat.col(m)
	center := ci*s.Nsamps + cj

	// Fill centers borrow the radiometry of the nearest non-fill
	// pixel in the window; a fully filled window is skipped.
	curr, ok := s.windowSubstitute(lat, ci, cj)
	if !ok {
		return nil
	}
	pi, pj := curr/s.Nsamps, curr%s.Nsamps

	// Geolocate the pixel center.
	latRad, lonRad, err := s.Geo.FromSpace(float64(pi)-0.5, float64(pj)+0.5)
	if err != nil {
		return fmt.Errorf("lasrc.InvertAerosol: %v", err)
	}
	ratio := s.Anc.ratioAt(latRad*rad2deg, lonRad*rad2deg)

	// NDWI from the TOA snapshots, clamped to the climatological
	// range.
	b5, b7 := s.aerob5[curr], s.aerob7[curr]
	xndwi := (b5 - 0.5*b7) / (b5 + 0.5*b7)
	if xndwi < ratio.ndwiTh2 {
		xndwi = ratio.ndwiTh2
	} else if xndwi > ratio.ndwiTh1 {
		xndwi = ratio.ndwiTh1
	}

	erelc := make([]float64, NReflBand)
	troatm := make([]float64, NReflBand)
	for ib := range erelc {
		erelc[ib] = -1
		troatm[ib] = -1
	}
	erelc[B1] = xndwi*ratio.slprb1 + ratio.intrb1
	erelc[B2] = xndwi*ratio.slprb2 + ratio.intrb2
	erelc[B4] = 1.0
	erelc[B7] = xndwi*ratio.slprb7 + ratio.intrb7
	troatm[B1] = s.aerob1[curr]
	troatm[B2] = s.aerob2[curr]
	troatm[B4] = s.aerob4[curr]
	troatm[B7] = s.aerob7[curr]

	// Three-point ε search followed by parabolic refinement.
	iaots := 0
	raot1, res1 := s.subAeroRet(B4, erelc, troatm, LowEps, &iaots)
	_, res2 := s.subAeroRet(B4, erelc, troatm, ModEps, &iaots)
	raot3, res3 := s.subAeroRet(B4, erelc, troatm, HighEps, &iaots)

	eps := epsMinimum(LowEps, ModEps, HighEps, res1, res2, res3)
	var raot, residual float64
	switch {
	case eps <= LowEps:
		eps = LowEps
		raot, residual = raot1, res1
	case eps >= HighEps:
		eps = HighEps
		raot, residual = raot3, res3
	default:
		raot, residual = s.subAeroRet(B4, erelc, troatm, eps, &iaots)
	}

	// Land/water decision.
	corf := raot / s.Xmus
	var flag uint8
	if residual < landThreshold(corf, troatm[B7]) {
		ros5 := s.atmcorlamb2New(B5, raot, eps, s.aerob5[curr])
		ros4 := s.atmcorlamb2New(B4, raot, eps, s.aerob4[curr])
		if ros5 > 0.1 && (ros5-ros4)/(ros5+ros4) > 0 {
			flag = IPFlagClear
		} else {
			flag = IPFlagWater
		}
	} else {
		flag = IPFlagWater
	}

	if flag&IPFlagWater != 0 {
		// Water retrieval: all supplied bands weighted equally.
		for ib := range erelc {
			erelc[ib] = -1
			troatm[ib] = -1
		}
		erelc[B1], erelc[B4], erelc[B5], erelc[B7] = 1, 1, 1, 1
		troatm[B1] = s.aerob1[curr]
		troatm[B4] = s.aerob4[curr]
		troatm[B5] = s.aerob5[curr]
		troatm[B7] = s.aerob7[curr]

		iaots = 0
		eps = DefaultEps
		raot, residual = s.subAeroRet(B4, erelc, troatm, eps, &iaots)
		ros1 := s.atmcorlamb2New(B1, raot, eps, s.aerob1[curr])
		corf = raot / s.Xmus
		if residual > waterThreshold(corf) || ros1 < 0 {
			// Likely turbid or urban: no valid retrieval.
			flag = 0
		} else {
			flag = IPFlagClear | IPFlagWater
		}
	}

	// Results always land on the window center, even when a
	// substitute supplied the radiometry.
	s.Ipflag[center] = flag
	s.Taero[center] = raot
	s.Teps[center] = eps
	return nil
}

// windowSubstitute returns the pixel whose radiometry the retrieval
// should use: the center itself when valid, otherwise the nearest
// non-fill pixel in the window, scanning outwards ring by ring in a
// fixed order. ok is false when the whole window is fill.
func (s *Scene) windowSubstitute(lat windowLattice, ci, cj int) (curr int, ok bool) {
	center := ci*s.Nsamps + cj
	if !s.IsFill(center) {
		return center, true
	}
	for r := 1; r <= lat.half; r++ {
		for i := ci - r; i <= ci+r; i++ {
			if i < 0 || i >= s.Nlines {
				continue
			}
			for j := cj - r; j <= cj+r; j++ {
				if j < 0 || j >= s.Nsamps {
					continue
				}
				// Ring only.
				if i != ci-r && i != ci+r && j != cj-r && j != cj+r {
					continue
				}
				if p := i*s.Nsamps + j; !s.IsFill(p) {
					return p, true
				}
			}
		}
	}
	return 0, false
}

// landThreshold is the residual acceptance level for a land
// retrieval; it loosens with the airmass-corrected AOT and with the
// band-7 TOA brightness.
func landThreshold(corf, troatmB7 float64) float64 {
	return 0.015 + 0.005*corf + 0.10*troatmB7
}

// waterThreshold is the residual acceptance level for a water
// retrieval.
func waterThreshold(corf float64) float64 {
	return 0.010 + 0.005*corf
}

// epsMinimum returns the vertex of the parabola through the three
// (ε, residual) samples.
func epsMinimum(e1, e2, e3, r1, r2, r3 float64) float64 {
	xa := (r1 - r3) * (e2 - e3)
	xb := (r2 - r3) * (e1 - e3)
	if xa == xb {
		return e2
	}
	return 0.5 * (xa*(e2+e3) - xb*(e1+e3)) / (xa - xb)
}

// subAeroRet retrieves the aerosol optical thickness for one window
// at a fixed Ångström exponent. The base band iband1 is inverted to
// surface reflectance at each candidate AOT; the band-ratio model
// erelc predicts the other bands' surface reflectance, which the
// forward model maps back to TOA. The returned residual is the RMS
// misfit against the observed TOA in troatm. Bands with negative
// erelc or troatm entries are excluded.
//
// The search is a monotone bracket over the AOT grid: it walks from
// *iaots while the residual decreases, interpolates the minimum
// parabolically between the bracketing samples, and leaves *iaots
// positioned for the next call at a nearby exponent.
func (s *Scene) subAeroRet(iband1 int, erelc, troatm []float64, eps float64, iaots *int) (raot, residual float64) {
	resid := func(aot float64) float64 {
		ros1 := s.atmcorlamb2New(iband1, aot, eps, troatm[iband1])
		var sum float64
		var n int
		for ib := 0; ib < NReflBand; ib++ {
			if erelc[ib] < 0 || troatm[ib] < 0 {
				continue
			}
			pred := s.forwardTOANew(ib, aot, eps, ros1*erelc[ib])
			d := pred - troatm[ib]
			sum += d * d
			n++
		}
		if n == 0 {
			return math.Inf(1)
		}
		return math.Sqrt(sum / float64(n))
	}

	ia := *iaots
	if ia < 0 {
		ia = 0
	} else if ia > NAot-1 {
		ia = NAot - 1
	}
	r := resid(Aot550nm[ia])

	// If the shared cursor starts past the minimum (the next lower
	// sample is better), walk back down while the residual improves;
	// otherwise walk uphill in AOT while it improves.
	if ia > 0 && resid(Aot550nm[ia-1]) < r {
		for ia > 0 {
			rn := resid(Aot550nm[ia-1])
			if rn >= r {
				break
			}
			ia--
			r = rn
		}
	} else {
		for ia+1 < NAot {
			rn := resid(Aot550nm[ia+1])
			if rn >= r {
				break
			}
			ia++
			r = rn
		}
	}

	// Parabolic refinement between the bracketing grid samples.
	switch {
	case ia == 0:
		raot = Aot550nm[0]
	case ia == NAot-1:
		raot = Aot550nm[NAot-1]
	default:
		x1, x2, x3 := Aot550nm[ia-1], Aot550nm[ia], Aot550nm[ia+1]
		r1, r3 := resid(x1), resid(x3)
		raot = parabolaVertex(x1, x2, x3, r1, r, r3)
		if raot < x1 {
			raot = x1
		} else if raot > x3 {
			raot = x3
		}
	}
	residual = resid(raot)

	*iaots = ia - 1
	if *iaots < 0 {
		*iaots = 0
	}
	return raot, residual
}

// parabolaVertex returns the abscissa of the vertex of the parabola
// through three points.
func parabolaVertex(x1, x2, x3, r1, r2, r3 float64) float64 {
	denom := (x1 - x2) * (x1 - x3) * (x2 - x3)
	if denom == 0 {
		return x2
	}
	a := (x3*(r2-r1) + x2*(r1-r3) + x1*(r3-r2)) / denom
	b := (x3*x3*(r1-r2) + x2*x2*(r3-r1) + x1*x1*(r2-r3)) / denom
	if a == 0 {
		return x2
	}
	return -b / (2 * a)
}
