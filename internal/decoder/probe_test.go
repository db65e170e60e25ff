package decoder

import "testing"

func TestParseFrameRate(t *testing.T) {
	cases := map[string]float64{
		"30/1":   30,
		"30000/1001": 30000.0 / 1001,
		"25":     25,
		"0/0":    0,
		"bogus":  0,
	}
	for raw, want := range cases {
		if got := parseFrameRate(raw); got != want {
			t.Errorf("parseFrameRate(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestParseProbeJSONNoVideoStream(t *testing.T) {
	data := []byte(`{"streams":[{"codec_type":"audio"}],"format":{"duration":"10"}}`)
	_, err := parseProbeJSON(data, "f.mkv")
	if err == nil {
		t.Fatal("expected error for missing video stream")
	}
}

func TestParseProbeJSONHappyPath(t *testing.T) {
	data := []byte(`{
		"streams": [
			{"codec_type":"video","codec_name":"h264","width":1920,"height":1080,"r_frame_rate":"30/1","nb_frames":"300"},
			{"codec_type":"audio","codec_name":"aac","tags":{"language":"eng"}}
		],
		"format": {"duration": "10.0"}
	}`)
	result, err := parseProbeJSON(data, "f.mkv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.info.FPS != 30 {
		t.Fatalf("fps = %v, want 30", result.info.FPS)
	}
	if result.info.FrameCount != 300 {
		t.Fatalf("frame count = %d, want 300 (from nb_frames)", result.info.FrameCount)
	}
	if result.width != 1920 || result.height != 1080 {
		t.Fatalf("dims = %dx%d", result.width, result.height)
	}
	if len(result.info.Tracks) != 2 {
		t.Fatalf("tracks = %d, want 2", len(result.info.Tracks))
	}
}

func TestParseProbeJSONFallsBackToDurationTimesFPS(t *testing.T) {
	data := []byte(`{
		"streams": [{"codec_type":"video","codec_name":"vp9","width":640,"height":480,"r_frame_rate":"25/1"}],
		"format": {"duration": "4.0"}
	}`)
	result, err := parseProbeJSON(data, "f.webm")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.info.FrameCount != 100 {
		t.Fatalf("frame count = %d, want 100", result.info.FrameCount)
	}
}
