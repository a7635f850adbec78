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

// Package lasrcutil wraps the lasrc library with configuration
// handling and runnable commands.
package lasrcutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"time"

	"github.com/alitto/pond"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/spatialmodel/lasrc"
)

var logger *logrus.Logger

func init() {
	logger = logrus.StandardLogger()
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
}

// Cfg holds configuration information.
type Cfg struct {
	*viper.Viper

	Root, versionCmd, runCmd, batchCmd *cobra.Command
}

var options = []struct {
	name, usage string
	defaultVal  interface{}
	isInputFile bool
}{
	{
		name:        "SceneFile",
		usage:       "Path to the gob-encoded Level-1 scene input.",
		defaultVal:  "",
		isInputFile: true,
	},
	{
		name:        "SceneFiles",
		usage:       "Paths to scene inputs for batch processing.",
		defaultVal:  []string{},
		isInputFile: true,
	},
	{
		name:        "LutFile",
		usage:       "Path to the gob-encoded radiative transfer lookup table.",
		defaultVal:  "lasrc_lut.gob",
		isInputFile: true,
	},
	{
		name:        "LutURL",
		usage:       "URL to download the lookup table from if LutFile is missing.",
		defaultVal:  "",
		isInputFile: false,
	},
	{
		name:        "CMGFile",
		usage:       "Path to the NetCDF CMG ancillary file (DEM, ozone, water vapor).",
		defaultVal:  "lasrc_cmg.nc",
		isInputFile: true,
	},
	{
		name:        "RatioFile",
		usage:       "Path to the NetCDF surface band-ratio climatology.",
		defaultVal:  "lasrc_ratio.nc",
		isInputFile: true,
	},
	{
		name:        "OutputFile",
		usage:       "Path for the gob-encoded surface reflectance products.",
		defaultVal:  "lasrc_sr.gob",
		isInputFile: false,
	},
	{
		name:        "AeroWindow",
		usage:       "Side length [pixels] of the aerosol retrieval window.",
		defaultVal:  lasrc.DefaultConfig().AeroWindow,
		isInputFile: false,
	},
}

// InitializeConfig sets up the commands and the configuration
// machinery.
func InitializeConfig() *Cfg {
	cfg := &Cfg{
		Viper: viper.New(),
	}

	cfg.Root = &cobra.Command{
		Use:   "lasrc",
		Short: "Landsat 8/9 surface reflectance correction.",
		Long: `lasrc converts calibrated Landsat 8/9 top-of-atmosphere reflectance to
surface reflectance, retrieving the aerosol state from the imagery.
Configuration can come from a file (--config), from command-line
flags, or from environment variables of the form 'LASRC_var'.`,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return setConfig(cfg)
		},
	}

	cfg.versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("LaSRC v%s\n", lasrc.Version)
		},
		DisableAutoGenTag: true,
	}

	cfg.runCmd = &cobra.Command{
		Use:   "run",
		Short: "Correct one scene.",
		Long: `run corrects the scene in SceneFile and writes the surface
reflectance products to OutputFile.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lut, anc, err := loadStatic(cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return RunScene(ctx, cfg, lut, anc,
				cfg.GetString("SceneFile"), cfg.GetString("OutputFile"))
		},
		DisableAutoGenTag: true,
	}

	cfg.batchCmd = &cobra.Command{
		Use:   "batch",
		Short: "Correct a batch of scenes.",
		Long: `batch corrects every scene in SceneFiles on a fixed worker pool,
sharing one lookup table and one set of ancillary grids.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lut, anc, err := loadStatic(cfg)
			if err != nil {
				return err
			}
			return RunBatch(cfg, lut, anc, GetStringSlice("SceneFiles", cfg.Viper))
		},
		DisableAutoGenTag: true,
	}

	bindOptions(cfg, cfg.Root.PersistentFlags())

	cfg.Root.AddCommand(cfg.versionCmd, cfg.runCmd, cfg.batchCmd)
	return cfg
}

// bindOptions registers every configuration option as a flag and
// binds it into the configuration store.
func bindOptions(cfg *Cfg, flags *pflag.FlagSet) {
	flags.String("config", "", "Path to the configuration file")
	for _, opt := range options {
		switch v := opt.defaultVal.(type) {
		case string:
			flags.String(opt.name, v, opt.usage)
		case []string:
			flags.StringSlice(opt.name, v, opt.usage)
		case int:
			flags.Int(opt.name, v, opt.usage)
		default:
			panic(fmt.Sprintf("invalid default type %T for option %s", v, opt.name))
		}
		cfg.BindPFlag(opt.name, flags.Lookup(opt.name))
	}
}

// setConfig reads the configuration file and environment.
func setConfig(cfg *Cfg) error {
	if file := cfg.Root.PersistentFlags().Lookup("config").Value.String(); file != "" {
		cfg.SetConfigFile(file)
		if err := cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("lasrcutil: reading configuration file: %v", err)
		}
	}
	cfg.SetEnvPrefix("LASRC")
	cfg.AutomaticEnv()
	return nil
}

// loadStatic loads the lookup table and ancillary grids shared by
// every scene of a run, downloading the lookup table first when a
// URL is configured and the file is missing.
func loadStatic(cfg *Cfg) (*lasrc.Lut, *lasrc.Ancillary, error) {
	lutFile := os.ExpandEnv(cfg.GetString("LutFile"))
	if url := cfg.GetString("LutURL"); url != "" {
		var err error
		if lutFile, err = maybeDownload(url, lutFile); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Open(lutFile)
	if err != nil {
		return nil, nil, fmt.Errorf("lasrcutil: opening lookup table: %v", err)
	}
	defer f.Close()
	lut, err := lasrc.LoadLut(f)
	if err != nil {
		return nil, nil, err
	}
	anc, err := lasrc.ReadCMG(os.ExpandEnv(cfg.GetString("CMGFile")))
	if err != nil {
		return nil, nil, err
	}
	if err := anc.ReadRatio(os.ExpandEnv(cfg.GetString("RatioFile"))); err != nil {
		return nil, nil, err
	}
	return lut, anc, nil
}

// RunScene corrects a single scene.
func RunScene(ctx context.Context, cfg *Cfg, lut *lasrc.Lut, anc *lasrc.Ancillary, sceneFile, outputFile string) error {
	logger.WithFields(logrus.Fields{"scene": sceneFile}).Info("correcting scene")

	f, err := os.Open(os.ExpandEnv(sceneFile))
	if err != nil {
		return fmt.Errorf("lasrcutil: opening scene: %v", err)
	}
	s, err := lasrc.LoadSceneInput(f)
	f.Close()
	if err != nil {
		return err
	}
	s.Lut = lut
	s.Anc = anc
	if w := cfg.GetInt("AeroWindow"); w > 0 {
		s.Cfg.AeroWindow = w
	}

	if err := s.Init(); err != nil {
		return err
	}
	if err := s.Run(ctx); err != nil {
		return err
	}

	n, mean, sd := s.RetrievalSummary()
	logger.WithFields(logrus.Fields{
		"scene":    sceneFile,
		"windows":  n,
		"aot_mean": fmt.Sprintf("%.4f", mean),
		"aot_sd":   fmt.Sprintf("%.4f", sd),
	}).Info("aerosol retrieval finished")

	out, err := os.Create(os.ExpandEnv(outputFile))
	if err != nil {
		return fmt.Errorf("lasrcutil: creating output: %v", err)
	}
	defer out.Close()
	if err := s.WriteProducts(out); err != nil {
		return err
	}
	s.Cleanup()
	logger.WithFields(logrus.Fields{"output": outputFile}).Info("wrote products")
	return nil
}

// RunBatch corrects the given scenes on a fixed pool of workers, one
// scene per worker at a time. The lookup table, ancillary grids and
// guarded ratio climatology are shared read-only.
func RunBatch(cfg *Cfg, lut *lasrc.Lut, anc *lasrc.Ancillary, sceneFiles []string) error {
	logger.WithFields(logrus.Fields{"scenes": len(sceneFiles)}).Info("starting batch")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	for i, name := range sceneFiles {
		i, name := i, name
		pool.Submit(func() {
			out := fmt.Sprintf("%s_sr.gob", name)
			if err := RunScene(ctx, cfg, lut, anc, name, out); err != nil {
				logger.WithFields(logrus.Fields{
					"scene": name, "index": i,
				}).Error(err)
			}
		})
	}
	return nil
}
