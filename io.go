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
)

// ScaleFactor converts unscaled surface reflectance to the stored
// integer representation.
const ScaleFactor = 10000

// SrlAerosol is the product band index of the aerosol QA byte,
// following the seven surface reflectance bands.
const SrlAerosol = 7

// SceneInput is the gob container a collaborator hands to the
// correction: Level-1 TOA reflectance bands, QA, geometry, and the
// scene projection so a Geolocator can be built.
type SceneInput struct {
	Nlines, Nsamps int
	Satellite      string
	Xts            float64 // scene-center solar zenith [degrees]
	Pres, Uoz, Uwv float64 // zero values resample from the CMG

	Proj      string  // PROJ.4 string of the scene projection
	ULx, ULy  float64 // projected upper-left corner
	PixelSize float64

	QA    []uint16
	Sband [NReflBand][]float64
}

// LoadSceneInput decodes a scene input container and builds the
// Scene from it. The lookup table and ancillary grids are attached
// separately.
func LoadSceneInput(r io.Reader) (*Scene, error) {
	var in SceneInput
	if err := gob.NewDecoder(r).Decode(&in); err != nil {
		return nil, fmt.Errorf("lasrc.LoadSceneInput: %v", err)
	}
	geo, err := NewProjGeolocator(in.Proj, in.ULx, in.ULy, in.PixelSize)
	if err != nil {
		return nil, fmt.Errorf("lasrc.LoadSceneInput: %v", err)
	}
	s := &Scene{
		Nlines:    in.Nlines,
		Nsamps:    in.Nsamps,
		Satellite: in.Satellite,
		Xts:       in.Xts,
		Pres:      in.Pres,
		Uoz:       in.Uoz,
		Uwv:       in.Uwv,
		Geo:       geo,
		QA:        in.QA,
		Sband:     in.Sband,
		Cfg:       DefaultConfig(),
	}
	return s, nil
}

// Save encodes a scene input container as gob.
func (in *SceneInput) Save(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(in); err != nil {
		return fmt.Errorf("lasrc.SceneInput.Save: %v", err)
	}
	return nil
}

// Products is the scaled output product set: one int16 raster per
// surface reflectance band plus the aerosol QA byte at SrlAerosol.
type Products struct {
	Nlines, Nsamps int
	SR             [7][]int16
	AerosolQA      []uint8
}

// Products scales the corrected scene into the integer product
// representation. Fill pixels get the configured fill value.
func (s *Scene) Products() *Products {
	p := &Products{Nlines: s.Nlines, Nsamps: s.Nsamps}
	npix := s.Npix()
	for ib := B1; ib <= B7; ib++ {
		out := make([]int16, npix)
		band := s.Sband[ib]
		for i := 0; i < npix; i++ {
			if s.Ipflag[i]&IPFlagFill != 0 {
				out[i] = s.Cfg.FillValue
				continue
			}
			v := band[i] * ScaleFactor
			if v >= 0 {
				v += 0.5
			} else {
				v -= 0.5
			}
			out[i] = int16(v)
		}
		p.SR[ib] = out
	}
	p.AerosolQA = make([]uint8, npix)
	copy(p.AerosolQA, s.Ipflag)
	return p
}

// WriteProducts scales the corrected scene and gob-encodes the
// product set; container formats (HDF, ENVI) are written by
// downstream collaborators.
func (s *Scene) WriteProducts(w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(s.Products()); err != nil {
		return fmt.Errorf("lasrc.WriteProducts: %v", err)
	}
	return nil
}

// ReadProducts decodes a product set written by WriteProducts.
func ReadProducts(r io.Reader) (*Products, error) {
	p := new(Products)
	if err := gob.NewDecoder(r).Decode(p); err != nil {
		return nil, fmt.Errorf("lasrc.ReadProducts: %v", err)
	}
	return p, nil
}
