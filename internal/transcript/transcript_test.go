package transcript

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
)

func frag(t *testing.T, uid, start, text string) Fragment {
	t.Helper()
	ts, err := snippet.ParseTimestamp(start)
	if err != nil {
		t.Fatalf("ParseTimestamp(%q): %v", start, err)
	}
	return Fragment{UserID: uid, Start: ts, End: start, Text: text}
}

func starts(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Start.String()
	}
	return out
}

func TestInsertOutOfOrder(t *testing.T) {
	o := NewOrdered()
	// Completion order 1st, 3rd, 2nd by time.
	o.Insert(frag(t, "u", "20240101120000", "a"))
	o.Insert(frag(t, "u", "20240101120010", "b"))
	o.Insert(frag(t, "u", "20240101120005", "c"))

	got := starts(o.Fragments())
	want := []string{"20240101120000", "20240101120005", "20240101120010"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestInsertTieBreakPreservesArrivalOrder(t *testing.T) {
	t.Run("a_then_b", func(t *testing.T) {
		o := NewOrdered()
		o.Insert(frag(t, "u", "20240101120000", "A"))
		o.Insert(frag(t, "u", "20240101120000", "B"))
		frags := o.Fragments()
		if frags[0].Text != "A" || frags[1].Text != "B" {
			t.Errorf("order = [%s, %s], want [A, B]", frags[0].Text, frags[1].Text)
		}
	})

	t.Run("b_then_a", func(t *testing.T) {
		o := NewOrdered()
		o.Insert(frag(t, "u", "20240101120000", "B"))
		o.Insert(frag(t, "u", "20240101120000", "A"))
		frags := o.Fragments()
		if frags[0].Text != "B" || frags[1].Text != "A" {
			t.Errorf("order = [%s, %s], want [B, A]", frags[0].Text, frags[1].Text)
		}
	})
}

func TestInsertRandomOrderStaysSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := []string{
		"20240101115930", "20240101120000", "20240101120005",
		"20240101120010", "20240101120030", "20240101121500",
		"20240101130000", "20240102090000",
	}

	for trial := 0; trial < 20; trial++ {
		o := NewOrdered()
		perm := rng.Perm(len(base))
		for _, i := range perm {
			o.Insert(frag(t, "u", base[i], "x"))
		}
		got := starts(o.Fragments())
		for i := range base {
			if got[i] != base[i] {
				t.Fatalf("trial %d: order = %v, want %v", trial, got, base)
			}
		}
	}
}

func TestInsertConcurrent(t *testing.T) {
	o := NewOrdered()
	times := []string{
		"20240101120000", "20240101120001", "20240101120002", "20240101120003",
		"20240101120004", "20240101120005", "20240101120006", "20240101120007",
	}

	var wg sync.WaitGroup
	for _, ts := range times {
		wg.Add(1)
		go func(ts string) {
			defer wg.Done()
			o.Insert(frag(t, "u", ts, "x"))
		}(ts)
	}
	wg.Wait()

	if o.Len() != len(times) {
		t.Fatalf("Len = %d, want %d", o.Len(), len(times))
	}
	got := o.Fragments()
	for i := 1; i < len(got); i++ {
		if got[i].Start.Before(got[i-1].Start) {
			t.Fatalf("ordering violated at %d: %v", i, starts(got))
		}
	}
}

func TestFragmentJSONShape(t *testing.T) {
	f := frag(t, "1000005685", "20240101120000000", "hello there")
	f.End = "20240101120135"

	data, err := json.Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := map[string]string{
		"uid":        "1000005685",
		"start_time": "20240101120000000",
		"end_time":   "20240101120135",
		"text":       "hello there",
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("%s = %q, want %q", k, decoded[k], v)
		}
	}
	if len(decoded) != len(want) {
		t.Errorf("json has %d fields, want %d: %s", len(decoded), len(want), data)
	}
}

func TestWriteJSONLines(t *testing.T) {
	o := NewOrdered()
	o.Insert(frag(t, "u1", "20240101120005", "second"))
	o.Insert(frag(t, "u2", "20240101120000", "first"))

	var buf bytes.Buffer
	if err := o.WriteJSONLines(&buf); err != nil {
		t.Fatalf("WriteJSONLines: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], `"text":"first"`) {
		t.Errorf("line 0 = %s, want first fragment", lines[0])
	}
	if !strings.Contains(lines[1], `"text":"second"`) {
		t.Errorf("line 1 = %s, want second fragment", lines[1])
	}
}
