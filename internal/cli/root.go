package cli

import (
	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/logging"
	"github.com/mgpai22/subtrack/internal/settings"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

var (
	verbose      bool
	charset      string
	frameRate    float64
	settingsPath string
	logger       *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "subtrack",
	Short: "Subtitle decoding and delivery engine",
	Long: `Subtrack loads subtitles in text, bitmap and broadcast formats and
delivers them as timed overlay events.

Supported inputs: SRT, WebVTT, ASS/SSA, TTML, YouTube timedtext, MicroDVD,
MPL2, TXT, TMP, VobSub (.idx/.sub), DVB teletext and CEA-608/708 captions
in MPEG transport streams, and TTML or 3GPP timed text in fragmented MP4.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.NewLogger(verbose)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringP("output", "o", "", "Output file or directory path")
	rootCmd.PersistentFlags().
		StringVar(&charset, "charset", "", "Charset for subtitles that are not UTF-8 (default windows-1252)")
	rootCmd.PersistentFlags().
		Float64Var(&frameRate, "fps", 0, "Frame rate for frame-numbered formats (default 25)")
	rootCmd.PersistentFlags().
		StringVar(&settingsPath, "settings", "", "Appearance settings JSON file")
}

// appearance from --settings, or the defaults
func loadAppearance() (settings.Appearance, error) {
	if settingsPath == "" {
		return settings.Default(), nil
	}
	return settings.Load(settingsPath)
}

func subtitleOptions() (subtitle.Options, error) {
	a, err := loadAppearance()
	if err != nil {
		return subtitle.Options{}, err
	}
	return subtitle.Options{
		Charset:    charset,
		FrameRate:  frameRate,
		Appearance: &a,
		Logger:     logger,
	}, nil
}
