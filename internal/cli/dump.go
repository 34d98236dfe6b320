package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/engine"
	"github.com/mgpai22/subtrack/internal/subtitle"
	"github.com/mgpai22/subtrack/internal/vobsub"
)

var probeCmd = &cobra.Command{
	Use:   "probe [file...]",
	Short: "Detect the subtitle format and count cues",
	Long: `Load each file and report its detected format and the number of cues
per track. VobSub indexes report their canvas size, tracks and entries.

Examples:
  subtrack probe movie.srt
  subtrack probe movie.idx capture.ts`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProbe,
}

var dumpCmd = &cobra.Command{
	Use:   "dump [file]",
	Short: "List the cues of a subtitle file",
	Long: `Print every cue with its start and stop time and plain text.

With --ops the compiled style opcodes are shown instead of the plain text.

Examples:
  subtrack dump movie.ass --ops
  subtrack dump capture.ts --page 888 -o teletext.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().Bool("ops", false, "Show style opcodes instead of plain text")
	addSourceFlags(dumpCmd)
	addSourceFlags(probeCmd)
}

// flags every command that loads a source understands
func addSourceFlags(cmd *cobra.Command) {
	cmd.Flags().String("page", "", "Teletext page, e.g. 888 (default: announced or first subtitle page)")
	cmd.Flags().Int("channel", 0, "Caption channel: 1-4 for CC1-CC4, 7+ for CEA-708 services, 0 for all, -1 to skip")
	cmd.Flags().Int("track", vobsub.AnyTrack, "VobSub track index (default: langidx or first)")
	cmd.Flags().Bool("yuv-palette", false, "VobSub palette is YUV instead of RGB")
	cmd.Flags().Bool("relative-ttml", false, "TTML in MP4 samples is timed from the sample start")
}

func engineOptions(cmd *cobra.Command) (engine.Options, error) {
	subOpts, err := subtitleOptions()
	if err != nil {
		return engine.Options{}, err
	}

	pageStr, _ := cmd.Flags().GetString("page")
	page, err := parsePage(pageStr)
	if err != nil {
		return engine.Options{}, err
	}
	channel, _ := cmd.Flags().GetInt("channel")
	track, _ := cmd.Flags().GetInt("track")
	yuv, _ := cmd.Flags().GetBool("yuv-palette")
	relative, _ := cmd.Flags().GetBool("relative-ttml")

	return engine.Options{
		Subtitle:       subOpts,
		VobSubTrack:    track,
		YUVPalette:     yuv,
		TeletextPage:   page,
		CaptionChannel: channel,
		RelativeTTML:   relative,
	}, nil
}

// teletext pages are written as three hex digits, magazine first
func parsePage(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	var page int
	if _, err := fmt.Sscanf(s, "%x", &page); err != nil || page < 0x100 || page > 0x8ff {
		return 0, fmt.Errorf("invalid teletext page %q: expected 100-8FF", s)
	}
	return page, nil
}

func runProbe(cmd *cobra.Command, args []string) error {
	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	out := cmd.OutOrStdout()

	for _, path := range args {
		if engine.DetectKind(path) == engine.KindVobSub {
			if err := probeVobSub(out, path, opts); err != nil {
				return err
			}
			continue
		}

		tracks, err := readTracks(ctx, path, opts)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		for _, lt := range tracks {
			fmt.Fprintf(out, "%s: %s, %d cues (layer %d)\n", path, lt.Track.Format, lt.Track.Len(), lt.Layer)
		}
	}
	return nil
}

func probeVobSub(out io.Writer, path string, opts engine.Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	index, err := vobsub.ParseIndex(data, opts.VobSubTrack, -1)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	fmt.Fprintf(out, "%s: vobsub %dx%d, %d entries\n", path, index.Width, index.Height, len(index.Entries))
	for _, t := range index.Tracks {
		fmt.Fprintf(out, "  track %d [%s]\n", t.Index, t.Language)
	}
	return nil
}

func runDump(cmd *cobra.Command, args []string) error {
	path := args[0]
	showOps, _ := cmd.Flags().GetBool("ops")
	outputPath, _ := cmd.Flags().GetString("output")

	opts, err := engineOptions(cmd)
	if err != nil {
		return err
	}
	tracks, err := readTracks(context.Background(), path, opts)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
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

	for _, lt := range tracks {
		if len(tracks) > 1 {
			fmt.Fprintf(out, "# %s\n\n", lt.Name)
		}
		if err := subtitle.WriteListing(out, lt.Track, showOps); err != nil {
			return fmt.Errorf("failed to write listing: %w", err)
		}
	}
	return nil
}
