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
	"math"
	"testing"

	"github.com/ctessum/sparse"
)

// Synthetic lookup table dimensions.
const (
	testNvz    = 2
	testNsz    = 22
	testNbf    = 8
	testNsolar = testNvz * testNsz * testNbf
	testNsun   = 23
)

// testRoatm, testTrans and testSphalb are the analytic curves behind
// the synthetic lookup table; roatm is quadratic in AOT and the
// others linear, so the cubic coefficient fits reproduce them almost
// exactly.
func testRoatm(ib int, pres, aot float64) float64 {
	return (0.04+0.03*aot-0.002*aot*aot)*(0.9+0.1*pres/stdPressure) +
		0.001*float64(ib)
}

func testTrans(aot float64) float64 { return math.Sqrt(0.9 - 0.02*aot) }

func testSphalb(aot float64) float64 { return 0.08 + 0.01*aot }

// testLut builds an analytically simple but structurally complete
// lookup table.
func testLut() *Lut {
	l := &Lut{
		Rolutt:  sparse.ZerosDense(NReflBand, NPres, NAot, testNsolar),
		Transt:  sparse.ZerosDense(NReflBand, NPres, NAot, testNsun),
		Sphalbt: sparse.ZerosDense(NReflBand, NPres, NAot),
		Normext: sparse.ZerosDense(NReflBand, NPres, NAot),
		Tsmax:   sparse.ZerosDense(testNvz, testNsz),
		Tsmin:   sparse.ZerosDense(testNvz, testNsz),
		Ttv:     sparse.ZerosDense(testNvz, testNsz),
		Nbfi:    sparse.ZerosDense(testNvz, testNsz),
		Nbfic:   sparse.ZerosDense(testNvz, testNsz),
	}
	for ib := 0; ib < NReflBand; ib++ {
		for ip := 0; ip < NPres; ip++ {
			for ia := 0; ia < NAot; ia++ {
				for is := 0; is < testNsolar; is++ {
					l.Rolutt.Set(testRoatm(ib, Tpres[ip], Aot550nm[ia]), ib, ip, ia, is)
				}
				for is := 0; is < testNsun; is++ {
					l.Transt.Set(testTrans(Aot550nm[ia]), ib, ip, ia, is)
				}
				l.Sphalbt.Set(testSphalb(Aot550nm[ia]), ib, ip, ia)
				l.Normext.Set(1, ib, ip, ia)
			}
		}
	}
	cum := 0
	for iv := 0; iv < testNvz; iv++ {
		for is := 0; is < testNsz; is++ {
			cum += testNbf
			l.Tsmax.Set(88, iv, is)
			l.Tsmin.Set(0, iv, is)
			l.Ttv.Set(0, iv, is)
			l.Nbfi.Set(testNbf, iv, is)
			l.Nbfic.Set(float64(cum), iv, is)
		}
	}
	l.Tauray = [NReflBand]float64{0.364, 0.254, 0.163, 0.091, 0.030, 0.008, 0.002, 0.006}
	for ib := 0; ib < NReflBand; ib++ {
		l.Oztransa[ib] = 0.005
		l.Wvtransa[ib] = 0.01
		l.Wvtransb[ib] = 0.7
		l.Ogtransa1[ib] = 0.005
		l.Ogtransb0[ib] = 1
		l.Ogtransb1[ib] = 0
	}
	return l
}

// Synthetic ancillary grid dimensions (10° cells).
const (
	testNbLat = 18
	testNbLon = 36
)

// testAncillary builds uniform ancillary grids: a climatology with
// zero NDWI slopes and the nominal intercepts, and a wide NDWI
// range.
func testAncillary() *Ancillary {
	fill := func(v float64) *sparse.DenseArray {
		a := sparse.ZerosDense(testNbLat, testNbLon)
		for i := range a.Elements {
			a.Elements[i] = v
		}
		return a
	}
	return &Ancillary{
		Dem:        fill(100),
		Oz:         fill(0.3),
		Wv:         fill(2.0),
		RatioB1:    fill(defaultIntB1),
		RatioB2:    fill(defaultIntB2),
		RatioB7:    fill(defaultIntB7),
		SlpRatioB1: fill(0),
		SlpRatioB2: fill(0),
		SlpRatioB7: fill(0),
		IntRatioB1: fill(defaultIntB1),
		IntRatioB2: fill(defaultIntB2),
		IntRatioB7: fill(defaultIntB7),
		Andwi:      fill(0),
		Sndwi:      fill(300),
	}
}

// linearGeolocator is a test geolocator with an affine image-to-
// geographic mapping.
type linearGeolocator struct {
	lat0, lon0 float64 // degrees at image (0, 0)
	step       float64 // degrees per pixel
}

func (g *linearGeolocator) FromSpace(line, sample float64) (lat, lon float64, err error) {
	return (g.lat0 - line*g.step) * deg2rad, (g.lon0 + sample*g.step) * deg2rad, nil
}

// testScene assembles a ready-to-Init synthetic scene with uniform
// TOA reflectance.
func testScene(t *testing.T, nlines, nsamps int) *Scene {
	s := &Scene{
		Nlines:    nlines,
		Nsamps:    nsamps,
		Satellite: "LANDSAT_8",
		Xts:       30,
		Pres:      1013,
		Uoz:       0.3,
		Uwv:       2.0,
		Lut:       testLut(),
		Anc:       testAncillary(),
		Geo:       &linearGeolocator{lat0: 40, lon0: -93, step: 1e-4},
		Cfg:       DefaultConfig(),
		QA:        make([]uint16, nlines*nsamps),
	}
	for ib := 0; ib < NReflBand; ib++ {
		s.Sband[ib] = make([]float64, nlines*nsamps)
		for i := range s.Sband[ib] {
			s.Sband[ib][i] = 0.2
		}
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	return s
}

// synthesizeTOA overwrites the scene's bands with the TOA
// reflectance of a uniform Lambertian surface under the aerosol
// state (aot, eps). Coefficients must already be computed.
func synthesizeTOA(s *Scene, surface [NReflBand]float64, aot, eps float64) {
	for ib := 0; ib < NReflBand; ib++ {
		toa := s.forwardTOANew(ib, aot, eps, surface[ib])
		for i := range s.Sband[ib] {
			s.Sband[ib][i] = toa
		}
	}
}

func runStages(t *testing.T, s *Scene, stages ...SceneManipulator) {
	for _, stage := range stages {
		if err := stage(s); err != nil {
			t.Fatal(err)
		}
	}
}

// TestPipelineLand runs the whole pipeline over a uniform vegetated
// land scene generated by the forward model, and checks that the
// retrieval recovers the aerosol state and the correction recovers
// the surface reflectance.
func TestPipelineLand(t *testing.T) {
	const (
		trueAot = 0.30
		trueEps = HighEps
		aotTol  = 0.05
		srTol   = 0.01
	)
	surface := [NReflBand]float64{
		B1: 0.033, B2: 0.036, B3: 0.1, B4: 0.06,
		B5: 0.3, B6: 0.1, B7: 0.12, B9: 0.1,
	}

	s := testScene(t, 16, 16)
	runStages(t, s, ComputeCoefficients())
	synthesizeTOA(s, surface, trueAot, trueEps)
	runStages(t, s,
		SnapshotAerosolBands(),
		ClimatologyCorrection(),
		GuardRatioGrid(),
		InvertAerosol(),
		FillInvalidRetrievals(),
		InterpolateAerosol(),
		FinalCorrection(),
	)

	lat := s.lattice()
	for k := 0; k < lat.ncy; k++ {
		for m := 0; m < lat.ncx; m++ {
			p := lat.row(k)*s.Nsamps + lat.col(m)
			if s.Ipflag[p]&IPFlagClear == 0 {
				t.Errorf("window center (%d,%d): flag %08b, expected clear", k, m, s.Ipflag[p])
			}
			if math.Abs(s.Taero[p]-trueAot) > aotTol {
				t.Errorf("window center (%d,%d): taero = %g, expected %g", k, m, s.Taero[p], trueAot)
			}
		}
	}
	for i := 0; i < s.Npix(); i++ {
		if math.IsNaN(s.Taero[i]) || math.IsNaN(s.Teps[i]) {
			t.Fatalf("pixel %d: uninitialized aerosol state after interpolation", i)
		}
	}
	for ib := B1; ib <= B7; ib++ {
		for i := 0; i < s.Npix(); i++ {
			v := s.Sband[ib][i]
			if v < s.Cfg.MinValidRefl || v > s.Cfg.MaxValidRefl {
				t.Fatalf("band %d pixel %d: reflectance %g outside valid range", ib, i, v)
			}
		}
		got := s.Sband[ib][0]
		if math.Abs(got-surface[ib]) > srTol {
			t.Errorf("band %d: surface reflectance = %g, expected %g", ib, got, surface[ib])
		}
	}
}

// TestPipelineWater runs the pipeline over a uniform dark water
// scene and expects valid water retrievals.
func TestPipelineWater(t *testing.T) {
	const (
		trueAot = 0.15
		aotTol  = 0.02
	)
	surface := [NReflBand]float64{
		B1: 0.02, B2: 0.02, B3: 0.02, B4: 0.02,
		B5: 0.02, B6: 0.02, B7: 0.02, B9: 0.02,
	}

	s := testScene(t, 16, 16)
	runStages(t, s, ComputeCoefficients())
	synthesizeTOA(s, surface, trueAot, DefaultEps)
	runStages(t, s,
		SnapshotAerosolBands(),
		ClimatologyCorrection(),
		GuardRatioGrid(),
		InvertAerosol(),
	)

	lat := s.lattice()
	for k := 0; k < lat.ncy; k++ {
		for m := 0; m < lat.ncx; m++ {
			p := lat.row(k)*s.Nsamps + lat.col(m)
			want := IPFlagClear | IPFlagWater
			if s.Ipflag[p] != want {
				t.Errorf("window center (%d,%d): flag %08b, expected %08b", k, m, s.Ipflag[p], want)
			}
			if math.Abs(s.Taero[p]-trueAot) > aotTol {
				t.Errorf("window center (%d,%d): taero = %g, expected %g", k, m, s.Taero[p], trueAot)
			}
			if s.Teps[p] != DefaultEps {
				t.Errorf("window center (%d,%d): teps = %g, expected %g", k, m, s.Teps[p], DefaultEps)
			}
		}
	}
}

// TestAllFillWindow checks that a fully filled window is skipped and
// that fill pixels end up with the scene defaults (property: fill
// pixels contribute no statistics).
func TestAllFillWindow(t *testing.T) {
	s := testScene(t, 16, 16)
	// Fill the upper-left window entirely.
	for i := 0; i < 9; i++ {
		for j := 0; j < 9; j++ {
			s.QA[i*s.Nsamps+j] = qaFill
		}
	}
	// Rebuild the fill flags with the modified QA.
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}

	surface := [NReflBand]float64{
		B1: 0.033, B2: 0.036, B3: 0.1, B4: 0.06,
		B5: 0.3, B6: 0.1, B7: 0.12, B9: 0.1,
	}
	runStages(t, s, ComputeCoefficients())
	synthesizeTOA(s, surface, 0.2, HighEps)
	runStages(t, s,
		SnapshotAerosolBands(),
		ClimatologyCorrection(),
		GuardRatioGrid(),
		InvertAerosol(),
	)

	center := 4*s.Nsamps + 4
	if s.Ipflag[center]&IPFlagFill == 0 {
		t.Errorf("all-fill window center flag = %08b, expected fill", s.Ipflag[center])
	}
	if !math.IsNaN(s.Taero[center]) {
		t.Errorf("all-fill window center taero = %g, expected no retrieval", s.Taero[center])
	}

	runStages(t, s, FillInvalidRetrievals(), InterpolateAerosol())
	if s.Taero[center] != s.medAot || s.Teps[center] != s.medEps {
		t.Errorf("fill pixel aerosol = (%g, %g), expected scene defaults (%g, %g)",
			s.Taero[center], s.Teps[center], s.medAot, s.medEps)
	}
}

func TestInitErrors(t *testing.T) {
	s := &Scene{Nlines: 0, Nsamps: 16}
	if err := s.Init(); err == nil {
		t.Error("expected an error for empty scene dimensions")
	}
	s = &Scene{Nlines: 4, Nsamps: 4, QA: make([]uint16, 3)}
	if err := s.Init(); err == nil {
		t.Error("expected an error for a mis-sized QA band")
	}
}
