package settings

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mgpai22/subtrack/internal/textstyle"
)

func TestParseAppliesDefaultsAndClamps(t *testing.T) {
	a, err := Parse([]byte(`{
		"color": "FF0000",
		"outline_size": 9,
		"scale": 10,
		"alignment": "sideways",
		"vertical_displacement": -1000
	}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if a.Color != 0x0000ff {
		t.Errorf("expected red stored as BGR 0x0000ff, got %#06x", int(a.Color))
	}
	if a.OutlineSize != 4 {
		t.Errorf("expected outline clamped to 4, got %d", a.OutlineSize)
	}
	if a.Scale != 30 {
		t.Errorf("expected scale clamped to 30, got %d", a.Scale)
	}
	if a.Alignment != AlignAuto {
		t.Errorf("expected auto alignment, got %q", a.Alignment)
	}
	if a.VerticalDisplacement != -300 {
		t.Errorf("expected displacement clamped to -300, got %d", a.VerticalDisplacement)
	}
	if a.ShadowOffset != 2 {
		t.Errorf("expected default shadow offset 2, got %d", a.ShadowOffset)
	}
}

func TestParseRejectsBadColor(t *testing.T) {
	tests := []string{
		`{"color": "FFF"}`,
		`{"color": "GGGGGG"}`,
		`{"color": 12}`,
	}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			if _, err := Parse([]byte(input)); err == nil {
				t.Errorf("expected error for %s", input)
			}
		})
	}
}

func TestColorJSONRoundTrip(t *testing.T) {
	in := Default()
	in.OutlineColor = Color(textstyle.RGBToBGR(0x123456))

	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if out != in {
		t.Errorf("expected %+v, got %+v", in, out)
	}
}

func TestTextPrefix(t *testing.T) {
	prefix := Default().TextPrefix()
	want := []textstyle.Code{
		textstyle.Color,
		textstyle.Shadow,
		textstyle.ShadowColor,
		textstyle.Outline,
		textstyle.OutlineColor,
	}
	codes := prefix.Codes()
	if len(codes) != len(want) {
		t.Fatalf("expected %d ops, got %d", len(want), len(codes))
	}
	for i := range want {
		if codes[i] != want[i] {
			t.Errorf("op %d: expected %v, got %v", i, want[i], codes[i])
		}
	}
	if prefix[0].Arg != 0xffffff {
		t.Errorf("expected white text, got %#06x", prefix[0].Arg)
	}
}

func TestStoreWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appearance.json")
	if err := os.WriteFile(path, []byte(`{"scale": 100}`), 0644); err != nil {
		t.Fatalf("failed to write settings: %v", err)
	}

	store := NewStore(Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- store.Watch(ctx, path, nil)
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"scale": 150}`), 0644); err != nil {
		t.Fatalf("failed to rewrite settings: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for store.Get().Scale != 150 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("settings were not reloaded, scale=%d", store.Get().Scale)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("watch returned error: %v", err)
	}
}
