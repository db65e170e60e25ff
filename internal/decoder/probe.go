// Package decoder implements the Decoder Adapter (spec §4.3): a thin reader
// wrapping an underlying codec/container library. Grounded on the teacher's
// internal/services/torrent/engine/ffprobe/ffprobe.go (subprocess ffprobe
// invocation parsed into domain.MediaInfo) and
// internal/api/http/streaming_ffmpeg.go (subprocess ffmpeg argument
// building and process lifecycle), both of which already shell out to the
// same two binaries this adapter depends on.
package decoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"videoengine/internal/domain"
)

const defaultProbeTimeout = 10 * time.Second

type probePayload struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	RFrameRate  string            `json:"r_frame_rate"`
	NbFrames    string            `json:"nb_frames"`
	Tags        map[string]string `json:"tags"`
	Disposition struct {
		Default int `json:"default"`
	} `json:"disposition"`
}

type probeFormat struct {
	Duration string `json:"duration"`
}

type probeResult struct {
	info   domain.MediaInfo
	width  int
	height int
}

// probe runs ffprobe against path and parses the first video stream's
// dimensions, frame rate and frame count, plus the full track list.
func probe(ctx context.Context, ffprobePath, path string) (probeResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, defaultProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(probeCtx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	result, parseErr := parseProbeJSON(stdout.Bytes(), path)
	if parseErr != nil {
		if runErr != nil {
			return probeResult{}, fmt.Errorf("ffprobe failed: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return probeResult{}, parseErr
	}
	return result, nil
}

// parseProbeJSON parses ffprobe's JSON output into a probeResult. Pure
// function, no subprocess involved, so it is unit-testable on its own.
func parseProbeJSON(data []byte, path string) (probeResult, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return probeResult{}, fmt.Errorf("ffprobe output parse failed: %w", err)
	}

	var videoStream *probeStream
	tracks := make([]domain.MediaTrack, 0, len(payload.Streams))
	videoIdx, audioIdx, subIdx := 0, 0, 0
	for i := range payload.Streams {
		s := &payload.Streams[i]
		switch s.CodecType {
		case "video":
			if videoStream == nil {
				videoStream = s
			}
			tracks = append(tracks, domain.MediaTrack{Index: videoIdx, Type: "video", Codec: s.CodecName, Language: s.Tags["language"], Title: s.Tags["title"], Default: s.Disposition.Default == 1})
			videoIdx++
		case "audio":
			tracks = append(tracks, domain.MediaTrack{Index: audioIdx, Type: "audio", Codec: s.CodecName, Language: s.Tags["language"], Title: s.Tags["title"], Default: s.Disposition.Default == 1})
			audioIdx++
		case "subtitle":
			tracks = append(tracks, domain.MediaTrack{Index: subIdx, Type: "subtitle", Codec: s.CodecName, Language: s.Tags["language"], Title: s.Tags["title"], Default: s.Disposition.Default == 1})
			subIdx++
		}
	}

	if videoStream == nil {
		return probeResult{}, domain.NewEngineError(domain.FileUnsupported, fmt.Errorf("no video stream found in %s", path))
	}

	fps := parseFrameRate(videoStream.RFrameRate)
	if fps <= 0 {
		return probeResult{}, domain.NewEngineError(domain.FileUnsupported, fmt.Errorf("could not determine frame rate for %s", path))
	}

	duration, _ := strconv.ParseFloat(payload.Format.Duration, 64)
	frameCount := 0
	if n, err := strconv.Atoi(videoStream.NbFrames); err == nil && n > 0 {
		frameCount = n
	} else if duration > 0 {
		frameCount = int(duration * fps)
	}

	return probeResult{
		info: domain.MediaInfo{
			FPS:         fps,
			OriginalFPS: fps,
			FrameCount:  frameCount,
			FilePath:    path,
			Tracks:      tracks,
		},
		width:  videoStream.Width,
		height: videoStream.Height,
	}, nil
}

// parseFrameRate parses ffprobe's "num/den" r_frame_rate representation.
func parseFrameRate(raw string) float64 {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		v, _ := strconv.ParseFloat(raw, 64)
		return v
	}
	num, errNum := strconv.ParseFloat(parts[0], 64)
	den, errDen := strconv.ParseFloat(parts[1], 64)
	if errNum != nil || errDen != nil || den == 0 {
		return 0
	}
	return num / den
}
