package cli

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/subtrack/internal/overlay"
	"github.com/mgpai22/subtrack/internal/vobsub"
)

var vobsubCmd = &cobra.Command{
	Use:   "vobsub [idx_file]",
	Short: "Export VobSub subpictures as PNG images",
	Long: `Decode every subpicture of a VobSub track and write it as a PNG file
named after its start time. The .sub file is expected next to the index.

Examples:
  subtrack vobsub movie.idx
  subtrack vobsub movie.idx --track 1 -o frames/
  subtrack vobsub movie.idx --yuv-palette --jobs 8`,
	Args: cobra.ExactArgs(1),
	RunE: runVobSub,
}

func init() {
	rootCmd.AddCommand(vobsubCmd)

	vobsubCmd.Flags().String("sub", "", "Path to the .sub file (default: next to the index)")
	vobsubCmd.Flags().Int("track", vobsub.AnyTrack, "Track index (default: langidx or first)")
	vobsubCmd.Flags().Bool("yuv-palette", false, "Palette is YUV instead of RGB")
	vobsubCmd.Flags().IntP("jobs", "j", runtime.NumCPU(), "Entries decoded in parallel")
}

func runVobSub(cmd *cobra.Command, args []string) error {
	idxPath := args[0]
	subPath, _ := cmd.Flags().GetString("sub")
	trackIdx, _ := cmd.Flags().GetInt("track")
	yuv, _ := cmd.Flags().GetBool("yuv-palette")
	jobs, _ := cmd.Flags().GetInt("jobs")
	outputDir, _ := cmd.Flags().GetString("output")

	if outputDir == "" {
		outputDir = strings.TrimSuffix(idxPath, filepath.Ext(idxPath)) + "_frames"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	track, err := vobsub.Open(idxPath, subPath, overlay.NewQueue(), vobsub.Options{
		Track:      trackIdx,
		YUVPalette: yuv,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	defer track.Close()

	entries := len(track.Index().Entries)
	logger.Infow("Exporting subpictures",
		"index", idxPath,
		"entries", entries,
		"output", outputDir,
		"jobs", jobs,
	)

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(jobs, 1))
	written := make([]int, entries)
	for i := range entries {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			events, err := track.Decode(i)
			if err != nil {
				logger.Warnw("Skipping entry", "entry", i, "error", err)
				return nil
			}
			for n, e := range events {
				name := fmt.Sprintf("%s_%03d.png", frameName(e.Start), n)
				err := writePNG(filepath.Join(outputDir, name), e.Bitmap)
				e.Release()
				if err != nil {
					return fmt.Errorf("entry %d: %w", i, err)
				}
				written[i]++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total := 0
	for _, n := range written {
		total += n
	}
	absOutput, _ := filepath.Abs(outputDir)
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d subpictures to %s\n", total, absOutput)
	return nil
}

// "HHMMSSmmm", sortable by start time
func frameName(at time.Duration) string {
	return strings.NewReplacer(":", "", ",", "").Replace(formatTime(at))
}

func writePNG(path string, bm *overlay.Bitmap) error {
	img := &image.NRGBA{
		Pix:    bm.Pix,
		Stride: bm.Width * 4,
		Rect:   image.Rect(0, 0, bm.Width, bm.Height),
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
