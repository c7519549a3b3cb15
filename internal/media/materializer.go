package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
)

// Artifact is a materialized, playable audio file on local disk.
type Artifact struct {
	Path     string
	Duration time.Duration
}

// FetchError reports a failed snippet download.
type FetchError struct {
	Status int // HTTP status, 0 for transport errors
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch failed: status %d", e.Status)
	}
	return fmt.Sprintf("fetch failed: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// TranscodeError reports a non-zero transcoder exit, carrying its stderr.
type TranscodeError struct {
	Stderr string
	Err    error
}

func (e *TranscodeError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 300 {
		msg = msg[len(msg)-300:]
	}
	return fmt.Sprintf("transcode failed: %v: %s", e.Err, msg)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// Materializer turns remote snippet locators into local audio artifacts.
// Artifacts are cached on disk keyed by {room}/{uid}/{startTime}.mp3; a
// second materialize call for the same key reuses the artifact without
// re-fetching or re-transcoding. Safe for concurrent use across snippets.
type Materializer struct {
	audioDir     string
	ffmpeg       string
	ffprobe      string
	fetchTimeout time.Duration
	client       *http.Client
	log          zerolog.Logger
	targets      lockMap
}

type Options struct {
	AudioDir     string
	FFmpegPath   string
	FFprobePath  string
	FetchTimeout time.Duration
	Log          zerolog.Logger
}

func NewMaterializer(opts Options) *Materializer {
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := opts.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Materializer{
		audioDir:     opts.AudioDir,
		ffmpeg:       ffmpeg,
		ffprobe:      ffprobe,
		fetchTimeout: timeout,
		client:       &http.Client{},
		log:          opts.Log.With().Str("component", "materializer").Logger(),
	}
}

// TargetPath is the deterministic artifact location for a snippet.
func (m *Materializer) TargetPath(meta snippet.Metadata) string {
	return filepath.Join(m.audioDir, meta.Room, meta.UserID, meta.StartTime.String()+".mp3")
}

// Materialize fetches the locator's bytes into a uniquely named transient
// file, extracts the audio track with ffmpeg, and moves the result into the
// artifact cache. The transient file is removed on every exit path.
// Concurrent calls for the same target serialize on a per-target lock, so
// the cache never sees interleaved writes.
func (m *Materializer) Materialize(ctx context.Context, locator string, meta snippet.Metadata) (*Artifact, error) {
	target := m.TargetPath(meta)

	unlock := m.targets.lock(target)
	defer unlock()

	if _, err := os.Stat(target); err == nil {
		m.log.Debug().Str("target", target).Msg("artifact cache hit")
		return m.withDuration(ctx, target)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}

	tmp := filepath.Join(os.TempDir(), "snippet-"+uuid.NewString()+".ts")
	defer os.Remove(tmp)

	if err := m.fetch(ctx, locator, tmp); err != nil {
		return nil, err
	}
	if err := m.transcode(ctx, tmp, target); err != nil {
		return nil, err
	}

	m.log.Debug().Str("target", target).Msg("artifact materialized")
	return m.withDuration(ctx, target)
}

func (m *Materializer) fetch(ctx context.Context, locator, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, m.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return &FetchError{Err: err}
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &FetchError{Status: resp.StatusCode}
	}

	f, err := os.Create(dest)
	if err != nil {
		return &FetchError{Err: err}
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return &FetchError{Err: err}
	}
	if err := f.Close(); err != nil {
		return &FetchError{Err: err}
	}
	return nil
}

// transcode extracts the audio track. Output goes to a unique partial file
// first and is renamed into place, so a half-written artifact is never
// visible at the target path.
func (m *Materializer) transcode(ctx context.Context, input, target string) error {
	partial := target + ".part-" + uuid.NewString()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ffmpeg, "-i", input, "-q:a", "0", "-map", "a", partial)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(partial)
		return &TranscodeError{Stderr: stderr.String(), Err: err}
	}
	if err := os.Rename(partial, target); err != nil {
		os.Remove(partial)
		return fmt.Errorf("finalize artifact: %w", err)
	}
	return nil
}

func (m *Materializer) withDuration(ctx context.Context, target string) (*Artifact, error) {
	d, err := m.ProbeDuration(ctx, target)
	if err != nil {
		return nil, err
	}
	return &Artifact{Path: target, Duration: d}, nil
}

// ProbeDuration reads the artifact's duration via ffprobe.
func (m *Materializer) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	var out, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, m.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("probe duration: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("probe duration: parse %q: %w", strings.TrimSpace(out.String()), err)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
