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

package lasrcutil

import (
	"strings"

	"github.com/lnashier/viper"
	"github.com/spf13/cast"
)

// GetStringSlice returns a string-slice configuration value. Slices
// can arrive from the configuration file as real lists or from flags
// and environment variables as comma- or space-delimited strings, so
// the raw value is normalized here.
func GetStringSlice(varName string, cfg *viper.Viper) []string {
	switch t := cfg.Get(varName).(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.Contains(s, ",") {
			var out []string
			for _, f := range strings.Split(s, ",") {
				if f = strings.TrimSpace(f); f != "" {
					out = append(out, f)
				}
			}
			return out
		}
		return strings.Fields(s)
	case []string:
		return t
	case []interface{}:
		return cast.ToStringSlice(t)
	default:
		return cast.ToStringSlice(t)
	}
}
