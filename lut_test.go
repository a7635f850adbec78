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
	"bytes"
	"testing"

	"github.com/ctessum/sparse"
)

// TestLutSaveLoad checks the gob round trip.
func TestLutSaveLoad(t *testing.T) {
	l := testLut()
	var buf bytes.Buffer
	if err := l.Save(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := LoadLut(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Rolutt.Shape[3] != l.Rolutt.Shape[3] {
		t.Errorf("solar axis length %d, expected %d", got.Rolutt.Shape[3], l.Rolutt.Shape[3])
	}
	if got.Tauray != l.Tauray {
		t.Errorf("tauray = %v, expected %v", got.Tauray, l.Tauray)
	}
	if got.Rolutt.Get(2, 1, 5, 0) != l.Rolutt.Get(2, 1, 5, 0) {
		t.Error("table values differ after the round trip")
	}
}

// TestLutValidate checks the structural validation.
func TestLutValidate(t *testing.T) {
	l := testLut()
	if err := l.validate(); err != nil {
		t.Fatal(err)
	}

	l.Sphalbt = nil
	if err := l.validate(); err == nil {
		t.Error("expected an error for a missing table")
	}

	l = testLut()
	l.Sphalbt = sparse.ZerosDense(NReflBand, NPres, 5)
	if err := l.validate(); err == nil {
		t.Error("expected an error for a wrong AOT axis")
	}

	l = testLut()
	l.Nbfic.Set(1e6, 0, 0) // packing end beyond the solar axis
	if err := l.validate(); err == nil {
		t.Error("expected an error for broken solar packing")
	}

	l = testLut()
	l.Tsmin.Set(90, 0, 0)
	l.Tsmax.Set(10, 0, 0)
	if err := l.validate(); err == nil {
		t.Error("expected an error for an inverted scattering envelope")
	}
}

// TestLutSolarInterpolation checks the packed solar-axis lookup
// interpolates between the cell's entries.
func TestLutSolarInterpolation(t *testing.T) {
	l := testLut()
	// Make the packed entries of the (0, 7) cell a ramp.
	iv, is := 0, 7
	n := int(l.Nbfi.Get(iv, is))
	lo := int(l.Nbfic.Get(iv, is)) - n
	for k := 0; k < n; k++ {
		l.Rolutt.Set(float64(k), 0, 0, 0, lo+k)
	}
	vMin := l.roluttAt(0, 0, 0, 0, 30, 0)
	vMax := l.roluttAt(0, 0, 0, 0, 30, 88)
	vMid := l.roluttAt(0, 0, 0, 0, 30, 44)
	if vMin != 0 {
		t.Errorf("lookup at envelope minimum = %g, expected 0", vMin)
	}
	if vMax != float64(n-1) {
		t.Errorf("lookup at envelope maximum = %g, expected %d", vMax, n-1)
	}
	if vMid <= vMin || vMid >= vMax {
		t.Errorf("lookup mid-envelope = %g, expected between %g and %g", vMid, vMin, vMax)
	}
}
