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
	"reflect"
	"testing"
)

func TestInitializeConfigDefaults(t *testing.T) {
	cfg := InitializeConfig()
	if got := cfg.GetString("LutFile"); got != "lasrc_lut.gob" {
		t.Errorf("LutFile default = %q", got)
	}
	if got := cfg.GetInt("AeroWindow"); got != 9 {
		t.Errorf("AeroWindow default = %d, expected 9", got)
	}
	if cfg.Root.Use != "lasrc" {
		t.Errorf("root command = %q", cfg.Root.Use)
	}
}

func TestGetStringSlice(t *testing.T) {
	cfg := InitializeConfig()
	cases := []struct {
		in   interface{}
		want []string
	}{
		{"a.gob,b.gob", []string{"a.gob", "b.gob"}},
		{"a.gob b.gob", []string{"a.gob", "b.gob"}},
		{[]string{"x", "y"}, []string{"x", "y"}},
		{[]interface{}{"x", "y"}, []string{"x", "y"}},
		{"", nil},
	}
	for _, c := range cases {
		cfg.Set("SceneFiles", c.in)
		if got := GetStringSlice("SceneFiles", cfg.Viper); !reflect.DeepEqual(got, c.want) {
			t.Errorf("GetStringSlice(%v) = %v, expected %v", c.in, got, c.want)
		}
	}
}
