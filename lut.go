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
	"encoding/gob"
	"fmt"
	"io"

	"github.com/ctessum/sparse"
)

// anglePitch is the zenith-angle sample spacing [degrees] of the
// lookup table geometry axes.
const anglePitch = 4.0

// Lut holds the 6S-style radiative transfer tables for one satellite.
// All tables are loaded once per scene and read-only afterwards.
//
// The solar axis of Rolutt is packed: for view-zenith row iv and
// sun-zenith column is, the entries
// [Nbfic[iv][is]-Nbfi[iv][is], Nbfic[iv][is]) sample the scattering
// angle uniformly over [Tsmin[iv][is], Tsmax[iv][is]]. The last axis
// of Transt is a regular zenith-angle grid with anglePitch spacing,
// and Ttv gives the effective view angle for the view-transmission
// lookup.
type Lut struct {
	// Rolutt is the intrinsic atmospheric reflectance,
	// [NReflBand][NPres][NAot][nsolar].
	Rolutt *sparse.DenseArray
	// Transt is the total atmospheric transmission for one path,
	// [NReflBand][NPres][NAot][nsun].
	Transt *sparse.DenseArray
	// Sphalbt is the atmospheric spherical albedo,
	// [NReflBand][NPres][NAot].
	Sphalbt *sparse.DenseArray
	// Normext is the aerosol extinction normalized to 550 nm,
	// [NReflBand][NPres][NAot].
	Normext *sparse.DenseArray

	// Scattering-angle envelope and packing tables, [nvz][nsz].
	Tsmax, Tsmin *sparse.DenseArray
	Ttv          *sparse.DenseArray
	Nbfi, Nbfic  *sparse.DenseArray

	// Per-band analytic constants: Rayleigh optical depth and the gas
	// transmission parameterization.
	Tauray    [NReflBand]float64
	Oztransa  [NReflBand]float64
	Wvtransa  [NReflBand]float64
	Wvtransb  [NReflBand]float64
	Ogtransa1 [NReflBand]float64
	Ogtransb0 [NReflBand]float64
	Ogtransb1 [NReflBand]float64
}

// LoadLut decodes a lookup table from its gob representation.
func LoadLut(r io.Reader) (*Lut, error) {
	l := new(Lut)
	if err := gob.NewDecoder(r).Decode(l); err != nil {
		return nil, fmt.Errorf("lasrc.LoadLut: %v", err)
	}
	// gob restores only the exported fields of each table; rebuild the
	// tables from their shape so indexing works on the decoded values.
	for _, p := range []**sparse.DenseArray{&l.Rolutt, &l.Transt, &l.Sphalbt,
		&l.Normext, &l.Tsmax, &l.Tsmin, &l.Ttv, &l.Nbfi, &l.Nbfic} {
		if *p == nil {
			continue
		}
		a := sparse.ZerosDense((*p).Shape...)
		copy(a.Elements, (*p).Elements)
		*p = a
	}
	if err := l.validate(); err != nil {
		return nil, fmt.Errorf("lasrc.LoadLut: %v", err)
	}
	return l, nil
}

// Save encodes the lookup table as gob.
func (l *Lut) Save(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(l); err != nil {
		return fmt.Errorf("lasrc.Lut.Save: %v", err)
	}
	return nil
}

func (l *Lut) validate() error {
	for _, tb := range []struct {
		name string
		arr  *sparse.DenseArray
		ndim int
	}{
		{"rolutt", l.Rolutt, 4},
		{"transt", l.Transt, 4},
		{"sphalbt", l.Sphalbt, 3},
		{"normext", l.Normext, 3},
		{"tsmax", l.Tsmax, 2},
		{"tsmin", l.Tsmin, 2},
		{"ttv", l.Ttv, 2},
		{"nbfi", l.Nbfi, 2},
		{"nbfic", l.Nbfic, 2},
	} {
		if tb.arr == nil {
			return fmt.Errorf("lut table %s is missing", tb.name)
		}
		if len(tb.arr.Shape) != tb.ndim {
			return fmt.Errorf("lut table %s has %d dimensions, expected %d",
				tb.name, len(tb.arr.Shape), tb.ndim)
		}
	}
	for _, tb := range []struct {
		name string
		arr  *sparse.DenseArray
	}{
		{"rolutt", l.Rolutt}, {"transt", l.Transt},
		{"sphalbt", l.Sphalbt}, {"normext", l.Normext},
	} {
		if tb.arr.Shape[0] != NReflBand {
			return fmt.Errorf("lut table %s covers %d bands, expected %d",
				tb.name, tb.arr.Shape[0], NReflBand)
		}
		if tb.arr.Shape[1] != NPres {
			return fmt.Errorf("lut table %s has %d pressure levels, expected %d",
				tb.name, tb.arr.Shape[1], NPres)
		}
		if tb.arr.Shape[2] != NAot {
			return fmt.Errorf("lut table %s has %d AOT samples, expected %d",
				tb.name, tb.arr.Shape[2], NAot)
		}
	}
	// Each cell's packed range must lie inside the solar axis and the
	// envelopes must be ordered.
	nvz, nsz := l.Tsmax.Shape[0], l.Tsmax.Shape[1]
	nsolar := l.Rolutt.Shape[3]
	for iv := 0; iv < nvz; iv++ {
		for is := 0; is < nsz; is++ {
			n := int(l.Nbfi.Get(iv, is))
			hi := int(l.Nbfic.Get(iv, is))
			if n <= 0 || hi-n < 0 || hi > nsolar {
				return fmt.Errorf("lut solar packing out of range at view %d sun %d: count %d end %d of %d",
					iv, is, n, hi, nsolar)
			}
			if l.Tsmin.Get(iv, is) > l.Tsmax.Get(iv, is) {
				return fmt.Errorf("lut scattering envelope inverted at view %d sun %d", iv, is)
			}
		}
	}
	return nil
}

// zenithCell returns the geometry-table cell for the given view and
// sun zenith angles [degrees], clamped to the table extent.
func (l *Lut) zenithCell(xtv, xts float64) (iv, is int) {
	nvz, nsz := l.Tsmax.Shape[0], l.Tsmax.Shape[1]
	iv = int(xtv / anglePitch)
	if iv > nvz-1 {
		iv = nvz - 1
	}
	is = int(xts / anglePitch)
	if is > nsz-1 {
		is = nsz - 1
	}
	return iv, is
}

// roluttAt interpolates the intrinsic reflectance table along the
// packed solar axis at the given scattering angle [degrees], for band
// ib, pressure level ip and AOT sample ia.
func (l *Lut) roluttAt(ib, ip, ia int, xtv, xts, scatAngle float64) float64 {
	iv, is := l.zenithCell(xtv, xts)
	n := int(l.Nbfi.Get(iv, is))
	lo := int(l.Nbfic.Get(iv, is)) - n
	if n == 1 {
		return l.Rolutt.Get(ib, ip, ia, lo)
	}
	tsmin := l.Tsmin.Get(iv, is)
	tsmax := l.Tsmax.Get(iv, is)
	t := 0.0
	if tsmax > tsmin {
		t = (scatAngle - tsmin) / (tsmax - tsmin)
	}
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	x := t * float64(n-1)
	i0 := int(x)
	if i0 > n-2 {
		i0 = n - 2
	}
	f := x - float64(i0)
	return l.Rolutt.Get(ib, ip, ia, lo+i0)*(1-f) +
		l.Rolutt.Get(ib, ip, ia, lo+i0+1)*f
}

// transtAt interpolates the one-path transmission table at the given
// zenith angle [degrees] for band ib, pressure level ip and AOT
// sample ia.
func (l *Lut) transtAt(ib, ip, ia int, zenith float64) float64 {
	nsun := l.Transt.Shape[3]
	x := zenith / anglePitch
	if x < 0 {
		x = 0
	}
	i0 := int(x)
	if i0 > nsun-2 {
		i0 = nsun - 2
	}
	f := x - float64(i0)
	if f > 1 {
		f = 1
	}
	return l.Transt.Get(ib, ip, ia, i0)*(1-f) +
		l.Transt.Get(ib, ip, ia, i0+1)*f
}

// viewAngle returns the effective view zenith angle [degrees] for the
// view-transmission lookup.
func (l *Lut) viewAngle(xtv, xts float64) float64 {
	iv, is := l.zenithCell(xtv, xts)
	return l.Ttv.Get(iv, is)
}

// bracket locates x in the strictly increasing grid and returns the
// lower index together with the interpolation fraction. Out-of-grid
// values clamp to the endpoints.
func bracket(grid []float64, x float64) (i int, f float64) {
	n := len(grid)
	if x <= grid[0] {
		return 0, 0
	}
	if x >= grid[n-1] {
		return n - 2, 1
	}
	for i = 0; i < n-2; i++ {
		if x < grid[i+1] {
			break
		}
	}
	return i, (x - grid[i]) / (grid[i+1] - grid[i])
}

// bracketPressure locates pres in the strictly decreasing pressure
// grid, clamping out-of-grid values.
func bracketPressure(pres float64) (i int, f float64) {
	n := len(Tpres)
	if pres >= Tpres[0] {
		return 0, 0
	}
	if pres <= Tpres[n-1] {
		return n - 2, 1
	}
	for i = 0; i < n-2; i++ {
		if pres > Tpres[i+1] {
			break
		}
	}
	return i, (Tpres[i] - pres) / (Tpres[i] - Tpres[i+1])
}
