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
	"log"
	"math"
	"sort"

	"github.com/GaryBoone/GoStats/stats"
	"gonum.org/v1/gonum/stat"
)

// retrievalStats summarizes the valid window-center retrievals.
type retrievalStats struct {
	n          int
	aotMean    float64
	aotStdDev  float64
}

// RetrievalSummary returns the number of valid window-center
// retrievals and the mean and standard deviation of their AOT.
func (s *Scene) RetrievalSummary() (n int, mean, stddev float64) {
	return s.retrievalStats.n, s.retrievalStats.aotMean, s.retrievalStats.aotStdDev
}

// validRetrieval reports whether the window center flag carries a
// usable retrieval.
func validRetrieval(flag uint8) bool {
	return flag&IPFlagFill == 0 && flag&(IPFlagClear|IPFlagWater) != 0
}

// FillInvalidRetrievals replaces window centers whose inversion
// failed with the mean over valid neighboring centers, searched over
// an expanding box. Centers with no valid neighbor at all fall back
// to the scene-median aerosol of the clear-pixel population.
func FillInvalidRetrievals() SceneManipulator {
	return func(s *Scene) error {
		lat := s.lattice()
		nc := lat.ncy * lat.ncx

		// Snapshot of the lattice so filled centers never feed later
		// fills.
		type centerState struct {
			taero, teps float64
			valid       bool
			invalid     bool
		}
		centers := make([]centerState, nc)
		var clearAot, clearEps []float64
		var aotStats stats.Stats
		for k := 0; k < lat.ncy; k++ {
			for m := 0; m < lat.ncx; m++ {
				c := k*lat.ncx + m
				p := lat.row(k)*s.Nsamps + lat.col(m)
				flag := s.Ipflag[p]
				centers[c].taero = s.Taero[p]
				centers[c].teps = s.Teps[p]
				centers[c].valid = validRetrieval(flag)
				centers[c].invalid = flag == 0
				if centers[c].valid {
					aotStats.Update(s.Taero[p])
					if flag&IPFlagClear != 0 {
						clearAot = append(clearAot, s.Taero[p])
						clearEps = append(clearEps, s.Teps[p])
					}
				}
			}
		}
		s.retrievalStats.n = aotStats.Count()
		if aotStats.Count() > 0 {
			s.retrievalStats.aotMean = aotStats.Mean()
		}
		if aotStats.Count() > 1 {
			s.retrievalStats.aotStdDev = aotStats.SampleStandardDeviation()
		}

		// Scene-wide defaults from the clear population.
		s.medAot, s.medEps = DefaultAot, DefaultEps
		if len(clearAot) > 0 {
			sort.Float64s(clearAot)
			sort.Float64s(clearEps)
			s.medAot = stat.Quantile(0.5, stat.Empirical, clearAot, nil)
			s.medEps = stat.Quantile(0.5, stat.Empirical, clearEps, nil)
		}

		maxR := lat.ncy
		if lat.ncx > maxR {
			maxR = lat.ncx
		}
		nFilled := 0
		for k := 0; k < lat.ncy; k++ {
			for m := 0; m < lat.ncx; m++ {
				c := k*lat.ncx + m
				if !centers[c].invalid {
					continue
				}
				taero, teps := s.medAot, s.medEps
				for r := 1; r <= maxR; r++ {
					var sumA, sumE float64
					var n int
					for kk := k - r; kk <= k+r; kk++ {
						if kk < 0 || kk >= lat.ncy {
							continue
						}
						for mm := m - r; mm <= m+r; mm++ {
							if mm < 0 || mm >= lat.ncx {
								continue
							}
							nb := centers[kk*lat.ncx+mm]
							if !nb.valid {
								continue
							}
							sumA += nb.taero
							sumE += nb.teps
							n++
						}
					}
					if n > 0 {
						taero = sumA / float64(n)
						teps = sumE / float64(n)
						break
					}
				}
				p := lat.row(k)*s.Nsamps + lat.col(m)
				s.Taero[p] = taero
				s.Teps[p] = teps
				nFilled++
			}
		}
		if nFilled > 0 {
			log.Printf("lasrc: filled %d invalid aerosol retrievals", nFilled)
		}
		return nil
	}
}

// InterpolateAerosol spreads (AOT, ε) from the window-center lattice
// to every pixel by bilinear interpolation between the four
// surrounding centers; edge pixels extrapolate from the nearest
// centers. Fill pixels get the scene-median defaults.
func InterpolateAerosol() SceneManipulator {
	return func(s *Scene) error {
		lat := s.lattice()

		// The interpolation overwrites Taero/Teps in place, so the
		// lattice values are snapshotted first.
		cTaero := make([]float64, lat.ncy*lat.ncx)
		cTeps := make([]float64, lat.ncy*lat.ncx)
		for k := 0; k < lat.ncy; k++ {
			for m := 0; m < lat.ncx; m++ {
				p := lat.row(k)*s.Nsamps + lat.col(m)
				cTaero[k*lat.ncx+m] = s.Taero[p]
				cTeps[k*lat.ncx+m] = s.Teps[p]
			}
		}
		// Centers of fully-filled windows never retrieved; they
		// contribute the scene defaults instead of NaN.
		for i := range cTaero {
			if math.IsNaN(cTaero[i]) {
				cTaero[i] = s.medAot
				cTeps[i] = s.medEps
			}
		}

		clampIdx := func(x, n int) int {
			if x < 0 {
				return 0
			}
			if x > n-1 {
				return n - 1
			}
			return x
		}

		pixelLoop(s.Npix(), func(i int) {
			if s.Ipflag[i]&IPFlagFill != 0 {
				s.Taero[i] = s.medAot
				s.Teps[i] = s.medEps
				return
			}
			l, c := i/s.Nsamps, i%s.Nsamps
			fy := float64(l-lat.half) / float64(lat.w)
			fx := float64(c-lat.half) / float64(lat.w)
			k0 := clampIdx(int(fy), lat.ncy)
			m0 := clampIdx(int(fx), lat.ncx)
			if fy < 0 {
				fy = 0
			}
			if fx < 0 {
				fx = 0
			}
			k1 := clampIdx(k0+1, lat.ncy)
			m1 := clampIdx(m0+1, lat.ncx)
			wy := fy - float64(k0)
			wx := fx - float64(m0)
			if wy > 1 {
				wy = 1
			}
			if wx > 1 {
				wx = 1
			}
			at := func(vals []float64) float64 {
				return vals[k0*lat.ncx+m0]*(1-wy)*(1-wx) +
					vals[k0*lat.ncx+m1]*(1-wy)*wx +
					vals[k1*lat.ncx+m0]*wy*(1-wx) +
					vals[k1*lat.ncx+m1]*wy*wx
			}
			s.Taero[i] = at(cTaero)
			s.Teps[i] = at(cTeps)
		})
		return nil
	}
}
