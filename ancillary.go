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
	"os"
	"sync"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// Climate Modeling Grid extent at 0.05°×0.05°. The production
// ancillary products are delivered on this grid; smaller grids (with
// proportionally coarser cells) are accepted for testing.
const (
	CMGNbLat = 3600
	CMGNbLon = 7200
)

// ratioScale converts the scaled-integer band-ratio grids to
// reflectance ratios.
const ratioScale = 0.001

// Default ratio record installed where the climatology is unusable:
// zero slope and the nominal band-1, band-2 and band-7 intercepts
// (already scaled by 1/ratioScale).
const (
	defaultIntB1 = 550
	defaultIntB2 = 600
	defaultIntB7 = 2000
)

// sndwiMin is the NDWI spread below which the climatology slopes are
// considered meaningless and zeroed.
const sndwiMin = 200

// Ancillary owns the scene-wide ancillary grids: the CMG DEM, ozone
// and water vapor, and the surface band-ratio climatology. The ratio
// grids keep the delivered scaled-integer values; conversion happens
// on sampling.
type Ancillary struct {
	// CMG grids, [nblat][nblon].
	Dem *sparse.DenseArray // elevation [m]
	Oz  *sparse.DenseArray // ozone [cm-atm]
	Wv  *sparse.DenseArray // water vapor [g/cm²]

	// Ratio climatology grids, [nblat][nblon], scaled by 1000.
	RatioB1, RatioB2, RatioB7          *sparse.DenseArray // mean ratios
	SlpRatioB1, SlpRatioB2, SlpRatioB7 *sparse.DenseArray // NDWI slopes
	IntRatioB1, IntRatioB2, IntRatioB7 *sparse.DenseArray // NDWI intercepts
	Andwi, Sndwi                       *sparse.DenseArray // NDWI mean and spread

	// The guard pass runs once even when several scenes share the
	// climatology.
	guardOnce sync.Once
	guarded   bool
}

// ReadCMG reads the DEM, ozone and water vapor grids from a NetCDF
// ancillary file with variables "dem", "ozone" and "water_vapor".
func ReadCMG(filename string) (*Ancillary, error) {
	ff, closef, err := openNCF(filename)
	if err != nil {
		return nil, fmt.Errorf("lasrc.ReadCMG: %v", err)
	}
	defer closef()
	a := new(Ancillary)
	for _, v := range []struct {
		name string
		dst  **sparse.DenseArray
	}{
		{"dem", &a.Dem}, {"ozone", &a.Oz}, {"water_vapor", &a.Wv},
	} {
		if *v.dst, err = readCMGVar(ff, v.name); err != nil {
			return nil, fmt.Errorf("lasrc.ReadCMG: %v", err)
		}
	}
	return a, nil
}

// ReadRatio reads the band-ratio climatology grids from a NetCDF file
// into a. The variables follow the climatology product naming.
func (a *Ancillary) ReadRatio(filename string) error {
	ff, closef, err := openNCF(filename)
	if err != nil {
		return fmt.Errorf("lasrc.ReadRatio: %v", err)
	}
	defer closef()
	for _, v := range []struct {
		name string
		dst  **sparse.DenseArray
	}{
		{"ratiob1", &a.RatioB1}, {"ratiob2", &a.RatioB2}, {"ratiob7", &a.RatioB7},
		{"slpratiob1", &a.SlpRatioB1}, {"slpratiob2", &a.SlpRatioB2}, {"slpratiob7", &a.SlpRatioB7},
		{"intratiob1", &a.IntRatioB1}, {"intratiob2", &a.IntRatioB2}, {"intratiob7", &a.IntRatioB7},
		{"andwi", &a.Andwi}, {"sndwi", &a.Sndwi},
	} {
		if *v.dst, err = readCMGVar(ff, v.name); err != nil {
			return fmt.Errorf("lasrc.ReadRatio: %v", err)
		}
	}
	return nil
}

func openNCF(filename string) (*cdf.File, func(), error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, nil, err
	}
	ff, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return ff, func() { f.Close() }, nil
}

// readCMGVar reads one 2-D grid variable out of a NetCDF file.
func readCMGVar(ff *cdf.File, name string) (*sparse.DenseArray, error) {
	dims := ff.Header.Lengths(name)
	if len(dims) != 2 {
		return nil, fmt.Errorf("reading netcdf: variable %s has %d dimensions, expected 2", name, len(dims))
	}
	nread := dims[0] * dims[1]
	r := ff.Reader(name, nil, nil)
	buf := r.Zero(nread)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading netcdf variable %s: %v", name, err)
	}
	data := sparse.ZerosDense(dims...)
	switch b := buf.(type) {
	case []float32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []float64:
		copy(data.Elements, b)
	case []int16:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range b {
			data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("reading netcdf variable %s: unsupported type %T", name, buf)
	}
	return data, nil
}

// cmgIndex maps a geographic location to its cell in a lat/lon grid
// of nblat×nblon covering the globe, together with the bilinear
// neighbor indices and weights. Longitude wraps; latitude clamps at
// the poles.
func cmgIndex(lat, lon float64, nblat, nblon int) (lcmg, scmg, lcmg1, scmg1 int, u, v float64) {
	latRes := 180. / float64(nblat)
	lonRes := 360. / float64(nblon)
	ycmg := (90 - latRes/2 - lat) * (float64(nblat) / 180)
	xcmg := (180 - lonRes/2 + lon) * (float64(nblon) / 360)
	lcmg = int(ycmg)
	scmg = int(xcmg)
	if lcmg < 0 {
		lcmg = 0
	} else if lcmg > nblat-1 {
		lcmg = nblat - 1
	}
	if scmg < 0 {
		scmg = 0
	} else if scmg > nblon-1 {
		scmg = nblon - 1
	}
	if scmg >= nblon-1 {
		scmg1 = 0
	} else {
		scmg1 = scmg + 1
	}
	if lcmg >= nblat-1 {
		lcmg1 = lcmg
	} else {
		lcmg1 = lcmg + 1
	}
	u = ycmg - float64(lcmg)
	v = xcmg - float64(scmg)
	if u < 0 {
		u = 0
	} else if u > 1 {
		u = 1
	}
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	return lcmg, scmg, lcmg1, scmg1, u, v
}

// bilinear4 combines the four neighbor values with weights (u, v).
func bilinear4(v11, v12, v21, v22, u, v float64) float64 {
	return v11*(1-u)*(1-v) + v12*(1-u)*v + v21*u*(1-v) + v22*u*v
}

// atmosAt bilinearly resamples the DEM, ozone and water vapor grids
// at a geographic location [degrees].
func (a *Ancillary) atmosAt(lat, lon float64) (dem, oz, wv float64) {
	nblat, nblon := a.Dem.Shape[0], a.Dem.Shape[1]
	l, s, l1, s1, u, v := cmgIndex(lat, lon, nblat, nblon)
	dem = bilinear4(a.Dem.Get(l, s), a.Dem.Get(l, s1), a.Dem.Get(l1, s), a.Dem.Get(l1, s1), u, v)
	oz = bilinear4(a.Oz.Get(l, s), a.Oz.Get(l, s1), a.Oz.Get(l1, s), a.Oz.Get(l1, s1), u, v)
	wv = bilinear4(a.Wv.Get(l, s), a.Wv.Get(l, s1), a.Wv.Get(l1, s), a.Wv.Get(l1, s1), u, v)
	return dem, oz, wv
}

// ratioSample holds the surface ratio model resampled at one pixel:
// NDWI slopes and intercepts for bands 1, 2 and 7 plus the NDWI
// clamp range.
type ratioSample struct {
	slprb1, slprb2, slprb7 float64
	intrb1, intrb2, intrb7 float64
	ndwiTh1, ndwiTh2       float64
}

// ratioAt resamples the guarded band-ratio climatology at a
// geographic location [degrees]. GuardRatioGrid must have run.
func (a *Ancillary) ratioAt(lat, lon float64) ratioSample {
	nblat, nblon := a.Andwi.Shape[0], a.Andwi.Shape[1]
	l, s, l1, s1, u, v := cmgIndex(lat, lon, nblat, nblon)

	sample := func(g *sparse.DenseArray) float64 {
		return bilinear4(g.Get(l, s), g.Get(l, s1), g.Get(l1, s), g.Get(l1, s1), u, v) * ratioScale
	}
	r := ratioSample{
		slprb1: sample(a.SlpRatioB1),
		slprb2: sample(a.SlpRatioB2),
		slprb7: sample(a.SlpRatioB7),
		intrb1: sample(a.IntRatioB1),
		intrb2: sample(a.IntRatioB2),
		intrb7: sample(a.IntRatioB7),
	}
	// NDWI clamp range from the upper-left neighbor.
	andwi := a.Andwi.Get(l, s)
	sndwi := a.Sndwi.Get(l, s)
	r.ndwiTh1 = (andwi + 2*sndwi) * ratioScale
	r.ndwiTh2 = (andwi - 2*sndwi) * ratioScale
	return r
}

// GuardRatioGrid rewrites unusable cells of the band-ratio
// climatology in a single pass before the aerosol inversion, so the
// window loop reads the grids without synchronization. Cells with a
// band-1 or band-2 mean ratio outside [0.1, 1.0] get the default
// record; cells with a flat NDWI history get zero slopes with the
// mean ratio as intercept. The rewrite is idempotent.
func GuardRatioGrid() SceneManipulator {
	return func(s *Scene) error {
		a := s.Anc
		if a.RatioB1 == nil {
			return fmt.Errorf("lasrc.GuardRatioGrid: no ratio climatology loaded")
		}
		a.guardOnce.Do(func() {
			nblat, nblon := a.RatioB1.Shape[0], a.RatioB1.Shape[1]
			pixelLoop(nblat*nblon, func(i int) {
				a.guardCell(i/nblon, i%nblon)
			})
			a.guarded = true
		})
		return nil
	}
}

func (a *Ancillary) guardCell(l, s int) {
	rb1 := a.RatioB1.Get(l, s) * ratioScale
	rb2 := a.RatioB2.Get(l, s) * ratioScale
	if rb1 < 0.1 || rb1 > 1.0 || rb2 < 0.1 || rb2 > 1.0 {
		a.SlpRatioB1.Set(0, l, s)
		a.SlpRatioB2.Set(0, l, s)
		a.SlpRatioB7.Set(0, l, s)
		a.IntRatioB1.Set(defaultIntB1, l, s)
		a.IntRatioB2.Set(defaultIntB2, l, s)
		a.IntRatioB7.Set(defaultIntB7, l, s)
		a.RatioB1.Set(defaultIntB1, l, s)
		a.RatioB2.Set(defaultIntB2, l, s)
		a.RatioB7.Set(defaultIntB7, l, s)
		return
	}
	if a.Sndwi.Get(l, s) < sndwiMin {
		a.SlpRatioB1.Set(0, l, s)
		a.SlpRatioB2.Set(0, l, s)
		a.SlpRatioB7.Set(0, l, s)
		a.IntRatioB1.Set(a.RatioB1.Get(l, s), l, s)
		a.IntRatioB2.Set(a.RatioB2.Get(l, s), l, s)
		a.IntRatioB7.Set(a.RatioB7.Get(l, s), l, s)
	}
}
