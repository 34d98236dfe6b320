package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/media"
)

var extractCmd = &cobra.Command{
	Use:   "extract [media_file]",
	Short: "Extract a subtitle stream from a media container",
	Long: `Extract one text subtitle stream from a container and save it as a
separate subtitle file. Use the streams command to find the stream index.

Supports output formats: srt, ass, vtt.

Examples:
  subtrack extract movie.mkv
  subtrack extract movie.mkv --stream 2 -f ass
  subtrack extract movie.mp4 -o movie.en.vtt --format vtt`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("format", "f", "srt", "Output subtitle format (srt, ass, vtt)")
	extractCmd.Flags().IntP("stream", "s", 0, "Subtitle stream index")
}

func runExtract(cmd *cobra.Command, args []string) error {
	mediaPath := args[0]

	format, _ := cmd.Flags().GetString("format")
	stream, _ := cmd.Flags().GetInt("stream")
	outputPath, _ := cmd.Flags().GetString("output")

	if outputPath == "" {
		outputPath = strings.TrimSuffix(mediaPath, filepath.Ext(mediaPath)) + "." + format
	}

	logger.Infow("Extracting subtitles",
		"media", mediaPath,
		"output", outputPath,
		"stream", stream,
		"format", format,
	)

	opts := media.ExtractOptions{
		Stream: stream,
		Format: format,
	}
	if err := media.ExtractSubtitle(context.Background(), mediaPath, outputPath, opts); err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	absOutput, _ := filepath.Abs(outputPath)
	fmt.Fprintf(cmd.OutOrStdout(), "Subtitles extracted successfully: %s\n", absOutput)
	return nil
}
