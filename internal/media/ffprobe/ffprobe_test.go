package ffprobe

import "testing"

func TestDurationSecondsPrefersFormat(t *testing.T) {
	result := Result{
		Format:  Format{Duration: "12.345"},
		Streams: []Stream{{CodecType: "audio", Duration: "12.1"}},
	}
	if got := result.DurationSeconds(); got != 12.345 {
		t.Fatalf("expected 12.345, got %v", got)
	}
}

func TestDurationSecondsFallsBackToStream(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio", Duration: "3.5"}}}
	if got := result.DurationSeconds(); got != 3.5 {
		t.Fatalf("expected 3.5, got %v", got)
	}
}

func TestDimensionsFindsVideoStream(t *testing.T) {
	result := Result{Streams: []Stream{
		{CodecType: "audio"},
		{CodecType: "video", Width: 1920, Height: 1080},
	}}
	w, h, ok := result.Dimensions()
	if !ok || w != 1920 || h != 1080 {
		t.Fatalf("expected 1920x1080, got %dx%d ok=%v", w, h, ok)
	}
}

func TestDimensionsMissing(t *testing.T) {
	result := Result{Streams: []Stream{{CodecType: "audio"}}}
	if _, _, ok := result.Dimensions(); ok {
		t.Fatal("expected no dimensions")
	}
}

func TestParseFloatGarbage(t *testing.T) {
	if parseFloat("N/A") != 0 {
		t.Fatal("expected 0 for unparseable input")
	}
}
