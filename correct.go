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

import "fmt"

// ClimatologyCorrection applies a provisional atmospheric correction
// at the scene-center atmosphere with the default aerosol state, so
// that Sband holds a first surface reflectance estimate while the
// aerosol retrieval runs. The per-band coefficients used here are
// kept on the scene; FinalCorrection reconstructs the TOA from them
// exactly.
func ClimatologyCorrection() SceneManipulator {
	return func(s *Scene) error {
		if s.coef == nil {
			return fmt.Errorf("lasrc.ClimatologyCorrection: coefficients not computed")
		}
		for ib := B1; ib <= B7; ib++ {
			tgo, roatm, ttatmg, satm := s.coefAt(ib, DefaultAot, HighEps)
			s.btgo[ib] = tgo
			s.broatm[ib] = roatm
			s.bttatmg[ib] = ttatmg
			s.bsatm[ib] = satm
			band := s.Sband[ib]
			pixelLoop(s.Npix(), func(i int) {
				if s.Ipflag[i]&IPFlagFill != 0 {
					return
				}
				band[i] = lambertian(band[i], tgo, roatm, ttatmg, satm)
			})
		}
		return nil
	}
}

// FinalCorrection reconstructs each pixel's TOA reflectance from the
// provisional surface reflectance and re-corrects it with the
// pixel's retrieved (AOT, ε). Band 1 additionally grades the size of
// the aerosol adjustment into the AERO QA bits. Output is clamped to
// the valid reflectance range.
func FinalCorrection() SceneManipulator {
	return func(s *Scene) error {
		if s.coef == nil {
			return fmt.Errorf("lasrc.FinalCorrection: coefficients not computed")
		}
		for ib := B1; ib <= B7; ib++ {
			ib := ib
			band := s.Sband[ib]
			pixelLoop(s.Npix(), func(i int) {
				if s.Ipflag[i]&IPFlagFill != 0 {
					return
				}
				rsurf := band[i]
				rotoa := forwardTOA(rsurf, s.btgo[ib], s.broatm[ib], s.bttatmg[ib], s.bsatm[ib])
				roslamb := s.atmcorlamb2New(ib, s.Taero[i], s.Teps[i], rotoa)
				if ib == B1 {
					delta := rsurf - roslamb
					if delta < 0 {
						delta = -delta
					}
					switch {
					case delta <= s.Cfg.LowAeroThresh:
						s.Ipflag[i] |= IPFlagAero1
					case delta < s.Cfg.AvgAeroThresh:
						s.Ipflag[i] |= IPFlagAero2
					default:
						s.Ipflag[i] |= IPFlagAero1 | IPFlagAero2
					}
				}
				if roslamb < s.Cfg.MinValidRefl {
					roslamb = s.Cfg.MinValidRefl
				} else if roslamb > s.Cfg.MaxValidRefl {
					roslamb = s.Cfg.MaxValidRefl
				}
				band[i] = roslamb
			})
		}
		return nil
	}
}
