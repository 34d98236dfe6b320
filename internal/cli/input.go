package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mgpai22/subtrack/internal/engine"
	"github.com/mgpai22/subtrack/internal/media"
	"github.com/mgpai22/subtrack/internal/mp4sub"
	"github.com/mgpai22/subtrack/internal/picker"
)

// readTracks loads every cue track of path. Containers the engine cannot
// read directly (mkv, progressive mp4) go through ffmpeg first.
func readTracks(ctx context.Context, path string, opts engine.Options) ([]engine.LayerTrack, error) {
	kind := engine.DetectKind(path)
	if kind == engine.KindText && media.IsContainer(path) {
		return readExtracted(ctx, path, opts)
	}

	tracks, err := engine.ReadTracks(ctx, path, opts)
	if errors.Is(err, mp4sub.ErrNotFragmented) {
		logger.Infow("Not a fragmented mp4, extracting with ffmpeg", "path", path)
		return readExtracted(ctx, path, opts)
	}
	return tracks, err
}

// the first text subtitle stream, converted to SRT in a temp dir
func readExtracted(ctx context.Context, path string, opts engine.Options) ([]engine.LayerTrack, error) {
	info, err := media.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	stream := -1
	for _, s := range info.Subtitles {
		if s.IsText() {
			stream = s.Index
			break
		}
	}
	if stream < 0 {
		return nil, fmt.Errorf("%s: no text subtitle stream", path)
	}

	tempDir, err := os.MkdirTemp("", "subtrack-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	out := filepath.Join(tempDir, "stream.srt")
	if err := media.ExtractSubtitle(ctx, path, out, media.ExtractOptions{Stream: stream, Format: "srt"}); err != nil {
		return nil, err
	}
	logger.Debugw("Extracted subtitle stream", "path", path, "stream", stream)
	return engine.ReadTracks(ctx, out, opts)
}

// session source for path, extracting through ffmpeg when needed
func openSource(ctx context.Context, s *engine.Session, path string, opts engine.Options) error {
	kind := engine.DetectKind(path)
	if kind == engine.KindVobSub {
		return s.Open(ctx, path, opts)
	}
	tracks, err := readTracks(ctx, path, opts)
	if err != nil {
		return err
	}
	for _, lt := range tracks {
		logger.Infow("Loaded track", "path", path, "track", lt.Name, "cues", lt.Track.Len())
		s.Add(picker.New(lt.Track, s.Queue(), lt.Layer, logger))
	}
	return nil
}
