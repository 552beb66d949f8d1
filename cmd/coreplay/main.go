// coreplay loads a libretro core and a game file and plays it with
// rewind support.
//
// Usage:
//
//	coreplay run --core <core.so> <game file> [flags]
//
// Global configuration (flags, COREPLAY_* environment variables, or
// ~/.coreplay.yaml):
//
//	prefer_vfs  - try in-memory presentations before path presentations
//	allow_zip   - trust cores that claim zip support
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/hajimehoshi/ebiten/v2"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user-none/coreplay/frontend"
	"github.com/user-none/coreplay/player"
	"github.com/user-none/coreplay/romloader"
)

var (
	flagCore       string
	flagArchive    string
	flagFullscreen bool
	flagSystemDir  string
	flagVariables  []string
	flagVerbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "coreplay",
	Short: "Retro-game playback runtime for libretro cores",
	Long: `coreplay drives libretro emulator cores at their native frame
cadence, with pause, fast-forward, slow motion and seamless
frame-granular rewind.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run --core <core.so> <game file>",
	Short: "Load a core and play a game",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGame(args[0])
	},
}

func init() {
	runCmd.Flags().StringVarP(&flagCore, "core", "c", "", "path to the libretro core shared object")
	runCmd.MarkFlagRequired("core")
	runCmd.Flags().StringVar(&flagArchive, "archive", "", "zip archive containing the game file")
	runCmd.Flags().BoolVarP(&flagFullscreen, "fullscreen", "f", false, "start in fullscreen")
	runCmd.Flags().StringVar(&flagSystemDir, "system-dir", "", "directory handed to cores asking for system data")
	runCmd.Flags().StringArrayVar(&flagVariables, "var", nil, "core variable as key=value (repeatable)")
	runCmd.Flags().Bool("prefer-vfs", false, "try in-memory presentations first")
	runCmd.Flags().Bool("allow-zip", false, "trust cores that claim zip support")

	viper.BindPFlag("prefer_vfs", runCmd.Flags().Lookup("prefer-vfs"))
	viper.BindPFlag("allow_zip", runCmd.Flags().Lookup("allow-zip"))

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(runCmd)
}

func initConfig() {
	viper.SetConfigName(".coreplay")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	viper.SetEnvPrefix("coreplay")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		log.WithField("file", viper.ConfigFileUsed()).Debug("loaded config")
	}
}

func parseVariables(pairs []string) map[string]string {
	vars := make(map[string]string)
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			log.WithField("var", pair).Warn("ignoring malformed variable, want key=value")
			continue
		}
		vars[k] = v
	}
	return vars
}

func runGame(gamePath string) error {
	display := frontend.NewDisplay()
	audio := frontend.NewAudioPlayer(1.0)
	pad := frontend.NewRetropad()

	p := player.New(afero.NewOsFs(), display, audio, pad, player.Config{
		PreferVFS: viper.GetBool("prefer_vfs"),
		AllowZip:  viper.GetBool("allow_zip"),
		SystemDir: flagSystemDir,
		Variables: parseVariables(flagVariables),
	})

	a := &app{player: p, display: display, audio: audio, pad: pad}
	p.SetStopRequestHook(a.requestStop)

	file := romloader.GameFile{Path: gamePath, Archive: flagArchive}
	if err := p.Open(flagCore, file, player.OpenOptions{Fullscreen: flagFullscreen}); err != nil {
		return fmt.Errorf("cannot play %s: %w", gamePath, err)
	}
	defer p.Close()

	geom := p.Geometry()
	width, height := geom.BaseWidth, geom.BaseHeight
	if width == 0 || height == 0 {
		width, height = 640, 480
	}
	ebiten.SetWindowTitle("coreplay")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSize(width*3, height*3)
	ebiten.SetWindowSizeLimits(width, height, -1, -1)
	ebiten.SetFullscreen(flagFullscreen)

	if err := ebiten.RunGame(a); err != nil && err != ebiten.Termination {
		return err
	}
	return nil
}

func main() {
	cobra.OnInitialize(initConfig)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
