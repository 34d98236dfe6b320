package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/engine"
	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/subtitle"
)

var teletextCmd = &cobra.Command{
	Use:   "teletext [ts_file]",
	Short: "Decode teletext subtitles from an MPEG transport stream",
	Long: `Decode the teletext subtitle page of a transport stream and list its
cues. Without --page the page announced in the PMT is used, or the first
page flagged as subtitles.

Examples:
  subtrack teletext capture.ts
  subtrack teletext capture.ts --page 777 -o teletext.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLayerDump(cmd, args[0], overlay.LayerTeletext)
	},
}

var captionsCmd = &cobra.Command{
	Use:   "captions [ts_file]",
	Short: "Decode closed captions from an MPEG transport stream",
	Long: `Decode CEA-608 and CEA-708 captions carried in the SEI messages of the
first H.264 or H.265 video stream and list them as cues.

Examples:
  subtrack captions capture.ts
  subtrack captions capture.ts --channel 1
  subtrack captions capture.ts --channel 7 --ops`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLayerDump(cmd, args[0], overlay.LayerCaptions)
	},
}

func init() {
	rootCmd.AddCommand(teletextCmd)
	rootCmd.AddCommand(captionsCmd)

	teletextCmd.Flags().String("page", "", "Teletext page, e.g. 888")
	teletextCmd.Flags().Bool("ops", false, "Show style opcodes instead of plain text")
	captionsCmd.Flags().Int("channel", 0, "Caption channel: 1-4 for CC1-CC4, 7+ for CEA-708 services, 0 for all")
	captionsCmd.Flags().Bool("ops", false, "Show style opcodes instead of plain text")
}

// lists the one broadcast layer of a transport stream
func runLayerDump(cmd *cobra.Command, path string, layer int) error {
	if engine.DetectKind(path) != engine.KindTransport {
		return fmt.Errorf("%s: not an MPEG transport stream", path)
	}
	showOps, _ := cmd.Flags().GetBool("ops")
	outputPath, _ := cmd.Flags().GetString("output")

	subOpts, err := subtitleOptions()
	if err != nil {
		return err
	}
	opts := engine.Options{Subtitle: subOpts}
	if layer == overlay.LayerTeletext {
		pageStr, _ := cmd.Flags().GetString("page")
		if opts.TeletextPage, err = parsePage(pageStr); err != nil {
			return err
		}
		opts.CaptionChannel = -1
	} else {
		opts.CaptionChannel, _ = cmd.Flags().GetInt("channel")
	}

	tracks, err := engine.ReadTracks(context.Background(), path, opts)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	var track *subtitle.Track
	for _, lt := range tracks {
		if lt.Layer == layer {
			track = lt.Track
		}
	}
	if track == nil || track.Len() == 0 {
		return fmt.Errorf("%s: no %s found", path, cmd.Name())
	}

	out := cmd.OutOrStdout()
	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	logger.Infow("Decoded", "path", path, "layer", cmd.Name(), "cues", track.Len())
	return subtitle.WriteListing(out, track, showOps)
}
