package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/api"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/config"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/database"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/media"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/mqttclient"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/session"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/storage"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcribe"
	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/transcript"
)

var version = "dev"

func main() {
	startTime := time.Now()

	var overrides config.Overrides
	flag.StringVar(&overrides.EnvFile, "env", "", "path to .env file")
	flag.StringVar(&overrides.Room, "room", "", "room to transcribe (overrides ROOM)")
	flag.StringVar(&overrides.HTTPAddr, "http", "", "status server listen address (overrides HTTP_ADDR)")
	flag.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flag.StringVar(&overrides.AudioDir, "audio-dir", "", "artifact cache directory (overrides AUDIO_DIR)")
	flag.IntVar(&overrides.Workers, "workers", 0, "pipeline worker count (overrides WORKERS)")
	flag.Parse()

	cfg, err := config.Load(overrides)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(level)
	log.Info().Str("version", version).Str("room", cfg.Room).Msg("bucket-to-deepgram starting")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Snippet source
	store, err := storage.NewS3Store(storage.S3Options{
		Bucket:     cfg.BucketName,
		Region:     cfg.S3Region,
		Endpoint:   cfg.S3Endpoint,
		AccessKey:  cfg.S3AccessKey,
		SecretKey:  cfg.S3SecretKey,
		PresignTTL: cfg.PresignTTL,
		Log:        log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init s3 store")
	}

	headCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	if err := store.HeadBucket(headCtx); err != nil {
		cancel()
		log.Fatal().Err(err).Str("bucket", cfg.BucketName).Msg("s3 startup check failed")
	}
	cancel()
	log.Info().Str("bucket", cfg.BucketName).Msg("s3 connection verified")

	locators, err := buildQueue(ctx, store, cfg.Room, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build snippet queue")
	}
	if len(locators) == 0 {
		log.Fatal().Str("room", cfg.Room).Msg("no .ts snippets found for room")
	}

	// Optional sinks
	var sinks []session.FragmentSink

	var mqttPub *mqttclient.Publisher
	if cfg.MQTTBrokerURL != "" {
		mqttPub, err = mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to mqtt broker")
		}
		defer mqttPub.Close()
		sinks = append(sinks, func(_ context.Context, room string, f transcript.Fragment) {
			if err := mqttPub.PublishFragment(room, f); err != nil {
				log.Warn().Err(err).Str("uid", f.UserID).Msg("fragment publish failed")
			}
		})
	}

	var db *database.DB
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Connect(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		sinks = append(sinks, func(ctx context.Context, room string, f transcript.Fragment) {
			if _, err := db.InsertFragment(ctx, room, f); err != nil {
				dbLog.Warn().Err(err).Str("uid", f.UserID).Msg("fragment archive failed")
			}
		})
	}

	// Pipeline
	sess := session.NewSession(cfg.Room, cfg.UserIDs)
	materializer := media.NewMaterializer(media.Options{
		AudioDir:     cfg.AudioDir,
		FFmpegPath:   cfg.FFmpegPath,
		FFprobePath:  cfg.FFprobePath,
		FetchTimeout: cfg.FetchTimeout,
		Log:          log,
	})
	provider := transcribe.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.DeepgramModel, cfg.Language, cfg.TranscribeTimeout)
	pipeline := session.NewPipeline(materializer, provider, log)
	coord := session.NewCoordinator(pipeline, cfg.Workers, log, sinks...)

	// Status server (optional)
	var srv *api.Server
	errCh := make(chan error, 1)
	if cfg.HTTPAddr != "" {
		httpLog := log.With().Str("component", "http").Logger()
		srv = api.NewServer(cfg, sess, coord, db, mqttPub, version, startTime, httpLog)
		go func() {
			errCh <- srv.Start()
		}()
	}

	runErr := coord.Run(ctx, sess, locators)
	if runErr != nil {
		// An interrupted run can carry both a context error and the
		// unknown-user mismatch; report each independently.
		var unknown *session.UnknownUserError
		if errors.As(runErr, &unknown) {
			log.Error().Strs("user_ids", unknown.UserIDs).Msg("fragments referenced unregistered users")
		}
		if errors.Is(runErr, context.Canceled) {
			log.Warn().Msg("session run interrupted")
		} else if unknown == nil {
			log.Error().Err(runErr).Msg("session run error")
		}
	}

	if err := writeTranscripts(cfg.OutputDir, sess); err != nil {
		log.Error().Err(err).Msg("failed to write transcripts")
	}
	for _, u := range sess.Users() {
		log.Info().Str("uid", u.ID).Int("fragments", u.Transcript.Len()).Msg("user transcript complete")
	}
	log.Info().Int("fragments", sess.Master.Len()).Msg("master transcript complete")

	// With the status server enabled, keep serving results until a signal.
	if srv != nil {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("http server error")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}

	log.Info().Msg("bucket-to-deepgram stopped")
}

// buildQueue lists the bucket, groups .ts keys by room, and presigns the
// selected room's keys popped from the end of the listing (oldest last).
func buildQueue(ctx context.Context, store *storage.S3Store, room string, log zerolog.Logger) ([]string, error) {
	keys, err := store.ListObjects(ctx)
	if err != nil {
		return nil, err
	}

	grouped := storage.GroupTSKeysByRoom(keys)
	roomKeys := grouped[room]
	log.Info().Int("rooms", len(grouped)).Int("room_keys", len(roomKeys)).Msg("bucket keys grouped")

	locators := make([]string, 0, len(roomKeys))
	for i := len(roomKeys) - 1; i >= 0; i-- {
		url, err := store.PresignGet(ctx, roomKeys[i])
		if err != nil {
			return nil, err
		}
		locators = append(locators, url)
	}
	return locators, nil
}

// writeTranscripts dumps per-user and master transcripts as JSON lines.
func writeTranscripts(outputDir string, sess *session.Session) error {
	dir := filepath.Join(outputDir, sess.Room)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	write := func(name string, t *transcript.Ordered) error {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if err := t.WriteJSONLines(f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	for _, u := range sess.Users() {
		if err := write(fmt.Sprintf("user_%s.jsonl", u.ID), u.Transcript); err != nil {
			return err
		}
	}
	return write("master.jsonl", sess.Master)
}
