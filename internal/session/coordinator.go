package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/metrics"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcript"
)

// Session is the explicit context for one room's transcription run: the
// pre-registered speakers and the room-wide master transcript. Constructed
// once before the pipelines launch, torn down with the run.
type Session struct {
	Room   string
	Master *transcript.Ordered
	users  map[string]*transcript.User
}

func NewSession(room string, userIDs []string) *Session {
	users := make(map[string]*transcript.User, len(userIDs))
	for _, id := range userIDs {
		users[id] = transcript.NewUser(id)
	}
	return &Session{Room: room, Master: transcript.NewOrdered(), users: users}
}

// User returns the pre-registered user for id, if any.
func (s *Session) User(id string) (*transcript.User, bool) {
	u, ok := s.users[id]
	return u, ok
}

// Users returns all registered users sorted by id.
func (s *Session) Users() []*transcript.User {
	out := make([]*transcript.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UnknownUserError reports fragments that referenced speakers nobody
// registered. It indicates a configuration mismatch, not a transient
// snippet failure, and never aborts sibling snippets.
type UnknownUserError struct {
	UserIDs []string
}

func (e *UnknownUserError) Error() string {
	return fmt.Sprintf("fragments for unregistered users: %s", strings.Join(e.UserIDs, ", "))
}

// FragmentSink receives every completed fragment after it has been routed
// into the transcripts. Used for the MQTT feed and the Postgres archive.
type FragmentSink func(ctx context.Context, room string, f transcript.Fragment)

// Stats reports coordinator progress.
type Stats struct {
	Queued    int   `json:"queued"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Unknown   int64 `json:"unknown_user"`
}

// Processor turns one locator into a completed fragment. Implemented by
// *Pipeline.
type Processor interface {
	Process(ctx context.Context, locator string) (transcript.Fragment, error)
}

// Coordinator fans snippet pipelines out over a bounded worker pool and
// routes each completed fragment to the owning user's transcript and the
// master transcript.
type Coordinator struct {
	pipeline Processor
	workers  int
	sinks    []FragmentSink
	log      zerolog.Logger

	queued    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	unknownMu sync.Mutex
	unknown   map[string]struct{}
}

func NewCoordinator(pipeline Processor, workers int, log zerolog.Logger, sinks ...FragmentSink) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		pipeline: pipeline,
		workers:  workers,
		sinks:    sinks,
		log:      log.With().Str("component", "coordinator").Logger(),
		unknown:  make(map[string]struct{}),
	}
}

// Run processes every locator concurrently and blocks until all pipelines
// reach a terminal state. Per-snippet failures are logged and excluded;
// after the batch finishes Run reports unregistered speakers as
// *UnknownUserError. On cancellation it returns the context error joined
// with any *UnknownUserError recorded before the interrupt.
func (c *Coordinator) Run(ctx context.Context, sess *Session, locators []string) error {
	c.queued.Store(int64(len(locators)))
	c.log.Info().
		Str("room", sess.Room).
		Int("snippets", len(locators)).
		Int("workers", c.workers).
		Msg("session run starting")

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			log := c.log.With().Int("worker", id).Logger()
			for locator := range jobs {
				c.process(ctx, log, sess, locator)
			}
		}(i)
	}

	for _, locator := range locators {
		select {
		case jobs <- locator:
		case <-ctx.Done():
			// Stop feeding; in-flight snippets drain on their own timeouts.
			close(jobs)
			wg.Wait()
			if uerr := c.unknownUsers(); uerr != nil {
				c.log.Error().Err(uerr).Msg("run interrupted with unregistered users recorded")
				return errors.Join(ctx.Err(), uerr)
			}
			return ctx.Err()
		}
	}
	close(jobs)
	wg.Wait()

	c.log.Info().
		Int64("completed", c.completed.Load()).
		Int64("failed", c.failed.Load()).
		Msg("session run finished")

	if err := c.unknownUsers(); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) process(ctx context.Context, log zerolog.Logger, sess *Session, locator string) {
	frag, err := c.pipeline.Process(ctx, locator)
	if err != nil {
		c.failed.Add(1)
		stage := StageIdentify
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		metrics.SnippetsFailed.WithLabelValues(string(stage)).Inc()
		log.Warn().
			Str("locator", locator).
			Str("stage", string(stage)).
			Err(err).
			Msg("snippet failed, excluded from transcripts")
		return
	}

	user, ok := sess.User(frag.UserID)
	if !ok {
		c.failed.Add(1)
		c.unknownMu.Lock()
		c.unknown[frag.UserID] = struct{}{}
		c.unknownMu.Unlock()
		metrics.SnippetsFailed.WithLabelValues("route").Inc()
		log.Error().
			Str("locator", locator).
			Str("uid", frag.UserID).
			Msg("fragment references unregistered user")
		return
	}

	user.Transcript.Insert(frag)
	sess.Master.Insert(frag)
	c.completed.Add(1)
	metrics.SnippetsCompleted.Inc()

	for _, sink := range c.sinks {
		sink(ctx, sess.Room, frag)
	}
}

// Stats returns current run statistics.
func (c *Coordinator) Stats() Stats {
	c.unknownMu.Lock()
	unknown := int64(len(c.unknown))
	c.unknownMu.Unlock()
	return Stats{
		Queued:    int(c.queued.Load()),
		Completed: c.completed.Load(),
		Failed:    c.failed.Load(),
		Unknown:   unknown,
	}
}

func (c *Coordinator) unknownUsers() error {
	c.unknownMu.Lock()
	defer c.unknownMu.Unlock()
	if len(c.unknown) == 0 {
		return nil
	}
	ids := make([]string, 0, len(c.unknown))
	for id := range c.unknown {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &UnknownUserError{UserIDs: ids}
}
