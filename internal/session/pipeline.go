package session

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/media"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/metrics"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcribe"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcript"
)

// Stage identifies where in the snippet pipeline a failure occurred.
type Stage string

const (
	StageIdentify    Stage = "identify"
	StageMaterialize Stage = "materialize"
	StageTranscribe  Stage = "transcribe"
)

// StageError wraps a per-snippet failure with its originating stage and
// locator. Failures are isolated: the snippet is excluded from all
// transcripts and sibling snippets are unaffected.
type StageError struct {
	Stage   Stage
	Locator string
	Err     error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("snippet %s stage failed for %q: %v", e.Stage, e.Locator, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Pipeline runs one snippet from locator to completed fragment:
// identify → materialize → transcribe → end-time computation.
type Pipeline struct {
	materializer *media.Materializer
	provider     transcribe.Provider
	log          zerolog.Logger
}

func NewPipeline(m *media.Materializer, p transcribe.Provider, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		materializer: m,
		provider:     p,
		log:          log.With().Str("component", "pipeline").Logger(),
	}
}

// Process takes a snippet through every stage. On failure it returns a
// *StageError naming the stage that broke; the caller decides routing.
func (p *Pipeline) Process(ctx context.Context, locator string) (transcript.Fragment, error) {
	sn, err := snippet.New(locator)
	if err != nil {
		return transcript.Fragment{}, &StageError{Stage: StageIdentify, Locator: locator, Err: err}
	}

	start := time.Now()
	artifact, err := p.materializer.Materialize(ctx, locator, sn.Meta)
	if err != nil {
		return transcript.Fragment{}, &StageError{Stage: StageMaterialize, Locator: locator, Err: err}
	}
	metrics.StageDuration.WithLabelValues(string(StageMaterialize)).Observe(time.Since(start).Seconds())

	start = time.Now()
	text, err := p.provider.Transcribe(ctx, artifact.Path)
	if err != nil {
		return transcript.Fragment{}, &StageError{Stage: StageTranscribe, Locator: locator, Err: err}
	}
	metrics.StageDuration.WithLabelValues(string(StageTranscribe)).Observe(time.Since(start).Seconds())

	p.log.Debug().
		Str("room", sn.Meta.Room).
		Str("uid", sn.Meta.UserID).
		Str("start_time", sn.Meta.StartTime.String()).
		Dur("audio_duration", artifact.Duration).
		Msg("snippet transcribed")

	return transcript.Fragment{
		UserID: sn.Meta.UserID,
		Start:  sn.Meta.StartTime,
		End:    snippet.EndTime(sn.Meta.StartTime, artifact.Duration),
		Text:   text,
	}, nil
}
