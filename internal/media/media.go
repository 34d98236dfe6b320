package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/subtrack/internal/ffmpeg"
)

// subtitle stream inside a media container
type Stream struct {
	Index    int // position among the subtitle streams, as in -map 0:s:N
	Codec    string
	Language string
	Title    string
	Default  bool
	Forced   bool
}

// true for codecs ffmpeg can turn into text
func (s Stream) IsText() bool {
	switch s.Codec {
	case "subrip", "srt", "ass", "ssa", "webvtt", "mov_text", "text", "ttml":
		return true
	}
	return false
}

// container summary
type Info struct {
	Path      string
	Duration  time.Duration
	Subtitles []Stream
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecName   string            `json:"codec_name"`
		CodecType   string            `json:"codec_type"`
		Tags        map[string]string `json:"tags"`
		Disposition map[string]int    `json:"disposition"`
	} `json:"streams"`
}

// Probe lists the subtitle streams of a container
func Probe(ctx context.Context, path string) (*Info, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("file not found: %s", path)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}
	return parseProbe(path, out.Bytes())
}

func parseProbe(path string, data []byte) (*Info, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &Info{Path: path}
	if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(secs * float64(time.Second))
	}
	for _, s := range probe.Streams {
		if s.CodecType != "subtitle" {
			continue
		}
		info.Subtitles = append(info.Subtitles, Stream{
			Index:    len(info.Subtitles),
			Codec:    s.CodecName,
			Language: s.Tags["language"],
			Title:    s.Tags["title"],
			Default:  s.Disposition["default"] != 0,
			Forced:   s.Disposition["forced"] != 0,
		})
	}
	return info, nil
}

// options for subtitle extraction
type ExtractOptions struct {
	Stream int    // subtitle stream index, as in Stream.Index
	Format string // srt, ass or vtt
}

var formatCodecs = map[string]string{
	"srt": "srt",
	"ass": "ass",
	"vtt": "webvtt",
}

// ExtractSubtitle converts one subtitle stream of a container into a text
// subtitle file the parsers can load
func ExtractSubtitle(ctx context.Context, path, outputPath string, opts ExtractOptions) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("media file not found: %s", path)
	}
	codec, ok := formatCodecs[opts.Format]
	if !ok {
		return fmt.Errorf("invalid format %q: supported formats are srt, ass, vtt", opts.Format)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	cmd := ffmpeg.Input(path).
		Output(outputPath, ffmpeg.KwArgs{
			"map": fmt.Sprintf("0:s:%d", opts.Stream),
			"c:s": codec,
		}).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Compile()

	// bind the process to ctx
	run := exec.CommandContext(ctx, cmd.Path, cmd.Args[1:]...)
	var stderr bytes.Buffer
	run.Stderr = &stderr
	if err := run.Run(); err != nil {
		return fmt.Errorf("ffmpeg extraction failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// checks if the file is a media container based on extension
func IsContainer(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mkv", ".mp4", ".m4v", ".mov", ".avi", ".webm", ".mpg", ".mpeg", ".ts", ".m2ts", ".ogm":
		return true
	}
	return false
}
