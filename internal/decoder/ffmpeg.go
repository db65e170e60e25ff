package decoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"videoengine/internal/domain"
)

const channels = 3 // rgb24

var tracer = otel.Tracer("videoengine/internal/decoder")

// FFmpegDecoder implements ports.Decoder by shelling out to ffprobe (for
// MediaInfo) and a long-lived ffmpeg subprocess emitting raw RGB24 frames on
// stdout. Exact-frame seeking in compressed video requires restarting the
// subprocess with -ss; reads at the current position simply continue
// draining the existing pipe.
type FFmpegDecoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *slog.Logger

	mu         sync.Mutex
	path       string
	info       domain.MediaInfo
	width      int
	height     int
	frameBytes int

	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc
	nextIdx int // index the next ReadNext will return
}

// Config bundles the binary paths used to shell out.
type Config struct {
	FFmpegPath  string
	FFprobePath string
	Logger      *slog.Logger
}

func New(cfg Config) *FFmpegDecoder {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := cfg.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegDecoder{ffmpegPath: ffmpeg, ffprobePath: ffprobe, logger: logger}
}

// Open probes path and prepares the adapter to read from frame 0. It does
// not itself start the ffmpeg subprocess; the first PositionTo/ReadNext call
// does, so Open stays cheap and side-effect-free beyond the probe.
func (d *FFmpegDecoder) Open(ctx context.Context, path string) (domain.MediaInfo, error) {
	ctx, span := tracer.Start(ctx, "decoder.Open", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	result, err := probe(ctx, d.ffprobePath, path)
	if err != nil {
		span.RecordError(err)
		return domain.MediaInfo{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	d.path = path
	d.info = result.info
	d.width = result.width
	d.height = result.height
	d.frameBytes = result.width * result.height * channels
	d.nextIdx = -1 // force a (re)start on the first PositionTo/ReadNext
	return d.info, nil
}

// PositionTo sets the next read to start at index. A no-op if index is
// already the position the subprocess is about to emit.
func (d *FFmpegDecoder) PositionTo(ctx context.Context, index int) (time.Duration, error) {
	ctx, span := tracer.Start(ctx, "decoder.PositionTo", trace.WithAttributes(attribute.Int("index", index)))
	defer span.End()

	d.mu.Lock()
	defer d.mu.Unlock()
	if index == d.nextIdx {
		return 0, nil
	}
	start := time.Now()
	if err := d.startLocked(ctx, index); err != nil {
		span.RecordError(err)
		return time.Since(start), err
	}
	return time.Since(start), nil
}

// ReadNext returns the frame at the current position and advances.
func (d *FFmpegDecoder) ReadNext(ctx context.Context) (domain.Frame, bool, time.Duration, error) {
	_, span := tracer.Start(ctx, "decoder.ReadNext")
	defer span.End()

	d.mu.Lock()
	if d.stdout == nil {
		if err := d.startLocked(ctx, 0); err != nil {
			d.mu.Unlock()
			return domain.Frame{}, false, 0, err
		}
	}
	stdout := d.stdout
	frameBytes := d.frameBytes
	width, height := d.width, d.height
	idx := d.nextIdx
	d.mu.Unlock()

	if frameBytes <= 0 {
		return domain.Frame{}, false, 0, fmt.Errorf("decoder: unknown frame geometry")
	}

	start := time.Now()
	buf := make([]byte, frameBytes)
	_, err := io.ReadFull(stdout, buf)
	elapsed := time.Since(start)
	if err != nil {
		// End-of-stream or unreadable frame: not itself an error condition the
		// caller must propagate (spec §4.3), just "no frame this call".
		return domain.Frame{}, false, elapsed, nil
	}

	d.mu.Lock()
	d.nextIdx = idx + 1
	d.mu.Unlock()

	return domain.Frame{Height: height, Width: width, Channels: channels, Data: buf}, true, elapsed, nil
}

func (d *FFmpegDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
	return nil
}

// startLocked (re)starts the ffmpeg subprocess positioned at frame index.
// Caller must hold d.mu.
func (d *FFmpegDecoder) startLocked(ctx context.Context, index int) error {
	d.stopLocked()

	seekSeconds := float64(index) / d.info.FPS
	runCtx, cancel := context.WithCancel(ctx)

	args := []string{"-hide_banner", "-loglevel", "error"}
	if seekSeconds > 0 {
		args = append(args, "-ss", strconv.FormatFloat(seekSeconds, 'f', 6, 64))
	}
	args = append(args,
		"-i", d.path,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-an", "-sn",
		"pipe:1",
	)

	cmd := exec.CommandContext(runCtx, d.ffmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("decoder: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("decoder: start ffmpeg: %w", err)
	}

	d.cmd = cmd
	d.stdout = stdout
	d.cancel = cancel
	d.nextIdx = index
	return nil
}

// stopLocked tears down any running subprocess. Caller must hold d.mu.
func (d *FFmpegDecoder) stopLocked() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.cmd != nil {
		_ = d.cmd.Wait()
	}
	d.cmd = nil
	d.stdout = nil
	d.cancel = nil
}
