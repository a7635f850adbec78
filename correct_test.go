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
)

// TestClimatologyRoundTrip checks that reconstructing TOA from the
// provisional surface reflectance recovers the snapshots exactly.
func TestClimatologyRoundTrip(t *testing.T) {
	const tol = 1e-5
	s := testScene(t, 8, 8)
	runStages(t, s, ComputeCoefficients(), SnapshotAerosolBands(), ClimatologyCorrection())

	snaps := map[int][]float64{
		B1: s.aerob1, B2: s.aerob2, B4: s.aerob4, B5: s.aerob5, B7: s.aerob7,
	}
	for ib, snap := range snaps {
		for i := 0; i < s.Npix(); i++ {
			back := forwardTOA(s.Sband[ib][i], s.btgo[ib], s.broatm[ib], s.bttatmg[ib], s.bsatm[ib])
			if math.Abs(back-snap[i]) > tol {
				t.Fatalf("band %d pixel %d: reconstructed TOA %g, snapshot %g", ib, i, back, snap[i])
			}
		}
	}
}

// TestFinalCorrectionClamps checks the output stays inside the valid
// reflectance range even for pathological inputs.
func TestFinalCorrectionClamps(t *testing.T) {
	s := testScene(t, 8, 8)
	runStages(t, s, ComputeCoefficients(), SnapshotAerosolBands(), ClimatologyCorrection())
	for i := 0; i < s.Npix(); i++ {
		s.Taero[i] = 0.3
		s.Teps[i] = HighEps
	}
	// Corrupt some provisional values.
	s.Sband[B3][0] = 5
	s.Sband[B3][1] = -5
	runStages(t, s, FinalCorrection())
	for ib := B1; ib <= B7; ib++ {
		for i := 0; i < s.Npix(); i++ {
			v := s.Sband[ib][i]
			if v < s.Cfg.MinValidRefl || v > s.Cfg.MaxValidRefl {
				t.Fatalf("band %d pixel %d: %g outside valid range", ib, i, v)
			}
		}
	}
}

// TestAerosolQABits checks the band-1 impact grading.
func TestAerosolQABits(t *testing.T) {
	s := testScene(t, 8, 8)
	runStages(t, s, ComputeCoefficients(), SnapshotAerosolBands(), ClimatologyCorrection())

	// With the default aerosol state the final correction reproduces
	// the provisional one, so the band-1 impact is minimal.
	for i := 0; i < s.Npix(); i++ {
		s.Taero[i] = DefaultAot
		s.Teps[i] = HighEps
	}
	runStages(t, s, FinalCorrection())
	for i := 0; i < s.Npix(); i++ {
		if s.Ipflag[i]&IPFlagAero1 == 0 || s.Ipflag[i]&IPFlagAero2 != 0 {
			t.Fatalf("pixel %d: flag %08b, expected the low-impact class", i, s.Ipflag[i])
		}
	}
}

// TestAerosolQAHighImpact checks that a large aerosol adjustment
// lands in the highest QA class.
func TestAerosolQAHighImpact(t *testing.T) {
	s := testScene(t, 8, 8)
	runStages(t, s, ComputeCoefficients(), SnapshotAerosolBands(), ClimatologyCorrection())
	for i := 0; i < s.Npix(); i++ {
		s.Taero[i] = 4.0
		s.Teps[i] = LowEps
	}
	runStages(t, s, FinalCorrection())
	want := IPFlagAero1 | IPFlagAero2
	if got := s.Ipflag[0] & want; got != want {
		t.Errorf("flag %08b, expected both aerosol impact bits", s.Ipflag[0])
	}
}

// TestFinalCorrectionSkipsFill checks fill pixels pass through
// untouched.
func TestFinalCorrectionSkipsFill(t *testing.T) {
	s := testScene(t, 8, 8)
	s.QA[5] = qaFill
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	runStages(t, s, ComputeCoefficients(), SnapshotAerosolBands(), ClimatologyCorrection())
	before := s.Sband[B2][5]
	for i := 0; i < s.Npix(); i++ {
		s.Taero[i] = 0.3
		s.Teps[i] = HighEps
	}
	runStages(t, s, FinalCorrection())
	if s.Sband[B2][5] != before {
		t.Errorf("fill pixel changed from %g to %g", before, s.Sband[B2][5])
	}
	if s.Ipflag[5]&(IPFlagAero1|IPFlagAero2) != 0 {
		t.Errorf("fill pixel acquired aerosol QA bits: %08b", s.Ipflag[5])
	}
}

// TestProducts checks output scaling and fill handling.
func TestProducts(t *testing.T) {
	s := testScene(t, 4, 4)
	s.QA[3] = qaFill
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < s.Npix(); i++ {
		s.Sband[B4][i] = 0.1234
	}
	p := s.Products()
	if got := p.SR[B4][0]; got != 1234 {
		t.Errorf("scaled reflectance = %d, expected 1234", got)
	}
	if got := p.SR[B4][3]; got != s.Cfg.FillValue {
		t.Errorf("fill pixel = %d, expected %d", got, s.Cfg.FillValue)
	}
	if p.AerosolQA[3]&IPFlagFill == 0 {
		t.Error("fill pixel missing the fill bit in the QA band")
	}
}
