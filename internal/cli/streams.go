package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mgpai22/subtrack/internal/media"
)

var streamsCmd = &cobra.Command{
	Use:   "streams [media_file]",
	Short: "List the subtitle streams of a media container",
	Long: `Run ffprobe on a container and list its subtitle streams. The index
column is what extract --stream expects.

Examples:
  subtrack streams movie.mkv`,
	Args: cobra.ExactArgs(1),
	RunE: runStreams,
}

func init() {
	rootCmd.AddCommand(streamsCmd)
}

func runStreams(cmd *cobra.Command, args []string) error {
	info, err := media.Probe(context.Background(), args[0])
	if err != nil {
		return err
	}
	if len(info.Subtitles) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: no subtitle streams\n", info.Path)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tCODEC\tLANGUAGE\tTITLE\tFLAGS")
	for _, s := range info.Subtitles {
		flags := ""
		if s.Default {
			flags += "default "
		}
		if s.Forced {
			flags += "forced "
		}
		if !s.IsText() {
			flags += "bitmap"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", s.Index, s.Codec, s.Language, s.Title, flags)
	}
	return w.Flush()
}
