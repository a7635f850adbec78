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

	"github.com/ctessum/geom/proj"
)

// projGeolocator implements Geolocator on top of a map projection:
// image (line, sample) maps affinely to projected coordinates, which
// are transformed to geographic radians.
type projGeolocator struct {
	inv        proj.Transformer
	ulx, uly   float64 // projected coordinates of the upper-left corner
	pixelSize  float64 // [projection units per pixel]
}

// NewProjGeolocator builds a Geolocator for a scene in the map
// projection given by projStr (a PROJ.4 string), with the upper-left
// corner at (ulx, uly) and square pixels of pixelSize units.
func NewProjGeolocator(projStr string, ulx, uly, pixelSize float64) (Geolocator, error) {
	sceneSR, err := proj.Parse(projStr)
	if err != nil {
		return nil, fmt.Errorf("lasrc.NewProjGeolocator: parsing scene projection: %v", err)
	}
	geoSR, err := proj.Parse("+proj=longlat")
	if err != nil {
		return nil, fmt.Errorf("lasrc.NewProjGeolocator: %v", err)
	}
	inv, err := sceneSR.NewTransform(geoSR)
	if err != nil {
		return nil, fmt.Errorf("lasrc.NewProjGeolocator: creating transform: %v", err)
	}
	return &projGeolocator{inv: inv, ulx: ulx, uly: uly, pixelSize: pixelSize}, nil
}

// FromSpace returns the geographic location of an image coordinate
// in radians.
func (g *projGeolocator) FromSpace(line, sample float64) (lat, lon float64, err error) {
	x := g.ulx + sample*g.pixelSize
	y := g.uly - line*g.pixelSize
	lon, lat, err = g.inv(x, y)
	if err != nil {
		return 0, 0, fmt.Errorf("lasrc.FromSpace: at line %g sample %g: %v", line, sample, err)
	}
	return lat, lon, nil
}
