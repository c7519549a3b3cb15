package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
)

// writeScript drops a fake transcoder/prober into dir so tests run without
// real ffmpeg binaries.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func testMeta(t *testing.T) snippet.Metadata {
	t.Helper()
	ts, err := snippet.ParseTimestamp("20240101120000000")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	return snippet.Metadata{Room: "42", UserID: "1000005685", StartTime: ts}
}

func newTestMaterializer(t *testing.T, ffmpegBody, ffprobeBody string) *Materializer {
	t.Helper()
	dir := t.TempDir()
	return NewMaterializer(Options{
		AudioDir: t.TempDir(),
		// ffmpeg is invoked as: ffmpeg -i <input> -q:a 0 -map a <output>
		FFmpegPath:  writeScript(t, dir, "ffmpeg", ffmpegBody),
		FFprobePath: writeScript(t, dir, "ffprobe", ffprobeBody),
		Log:         zerolog.Nop(),
	})
}

func TestTargetPath(t *testing.T) {
	m := NewMaterializer(Options{AudioDir: "/data/audio", Log: zerolog.Nop()})
	got := m.TargetPath(testMeta(t))
	want := filepath.Join("/data/audio", "42", "1000005685", "20240101120000000.mp3")
	if got != want {
		t.Errorf("TargetPath = %q, want %q", got, want)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	var fetches atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		w.Write([]byte("fake mpegts payload"))
	}))
	defer srv.Close()

	m := newTestMaterializer(t, `cp "$2" "$7"`, `echo 95.5`)
	meta := testMeta(t)

	art, err := m.Materialize(context.Background(), srv.URL, meta)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if art.Path != m.TargetPath(meta) {
		t.Errorf("Path = %q, want %q", art.Path, m.TargetPath(meta))
	}
	if art.Duration != 95500*time.Millisecond {
		t.Errorf("Duration = %v, want 95.5s", art.Duration)
	}
	if _, err := os.Stat(art.Path); err != nil {
		t.Errorf("artifact missing on disk: %v", err)
	}

	// Second call for the same key must not fetch or transcode again.
	art2, err := m.Materialize(context.Background(), srv.URL, meta)
	if err != nil {
		t.Fatalf("second Materialize: %v", err)
	}
	if art2.Path != art.Path {
		t.Errorf("cache hit returned %q, want %q", art2.Path, art.Path)
	}
	if n := fetches.Load(); n != 1 {
		t.Errorf("fetch count = %d, want 1 (idempotent cache hit)", n)
	}
}

func TestMaterializeFetchFailed(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	m := newTestMaterializer(t, `cp "$2" "$7"`, `echo 1.0`)

	_, err := m.Materialize(context.Background(), srv.URL, testMeta(t))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != http.StatusNotFound {
		t.Errorf("Status = %d, want 404", fe.Status)
	}
	assertNoTransients(t)
}

func TestMaterializeFetchWriteFailed(t *testing.T) {
	// Local I/O errors while downloading are fetch failures too, not bare
	// os errors. Point the transient dir somewhere unwritable.
	t.Setenv("TMPDIR", filepath.Join(t.TempDir(), "missing"))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	m := newTestMaterializer(t, `cp "$2" "$7"`, `echo 1.0`)

	_, err := m.Materialize(context.Background(), srv.URL, testMeta(t))
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Status != 0 {
		t.Errorf("Status = %d, want 0 for local write failure", fe.Status)
	}
	if fe.Unwrap() == nil {
		t.Error("FetchError.Err is nil, want the underlying write error")
	}
}

func TestMaterializeTranscodeFailed(t *testing.T) {
	t.Setenv("TMPDIR", t.TempDir())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	m := newTestMaterializer(t, `echo "codec not supported" >&2; exit 1`, `echo 1.0`)

	_, err := m.Materialize(context.Background(), srv.URL, testMeta(t))
	var te *TranscodeError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want *TranscodeError", err)
	}
	if te.Stderr == "" {
		t.Error("TranscodeError.Stderr is empty, want diagnostic output")
	}
	assertNoTransients(t)
}

// assertNoTransients checks the transient file was removed on the failure
// path. TMPDIR is test-scoped, so any leftover is ours.
func assertNoTransients(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(os.TempDir())
	if err != nil {
		t.Fatalf("read tmpdir: %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".ts" {
			t.Errorf("transient file %s not cleaned up", e.Name())
		}
	}
}

func TestLockMapSerializes(t *testing.T) {
	var lm lockMap

	unlock := lm.lock("target")
	acquired := make(chan struct{})
	go func() {
		u := lm.lock("target")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after unlock")
	}
}
