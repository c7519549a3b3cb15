package transcript

import (
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
)

// Fragment is one completed, timestamped, transcribed text unit derived from
// a single snippet. Immutable once constructed.
type Fragment struct {
	UserID string
	Start  snippet.Timestamp
	End    string
	Text   string
}

// fragmentJSON is the persisted/log line shape.
type fragmentJSON struct {
	UID       string `json:"uid"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Text      string `json:"text"`
}

func (f Fragment) MarshalJSON() ([]byte, error) {
	return json.Marshal(fragmentJSON{
		UID:       f.UserID,
		StartTime: f.Start.String(),
		EndTime:   f.End,
		Text:      f.Text,
	})
}

// Ordered is a transcript kept strictly non-decreasing by fragment start
// time. Fragments arrive in arbitrary completion order; Insert places each
// one by binary search. Safe for concurrent use; each instance serializes
// its own structural mutation.
type Ordered struct {
	mu    sync.RWMutex
	frags []Fragment
}

func NewOrdered() *Ordered {
	return &Ordered{}
}

// Insert places f at its sorted position. Fragments with equal start time
// keep their arrival order: the insertion point is the first index whose
// start time is strictly greater than f's.
func (o *Ordered) Insert(f Fragment) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := sort.Search(len(o.frags), func(i int) bool {
		return f.Start.Before(o.frags[i].Start)
	})
	o.frags = append(o.frags, Fragment{})
	copy(o.frags[i+1:], o.frags[i:])
	o.frags[i] = f
}

// Fragments returns a snapshot copy of the current sequence. The ordering
// invariant holds at every point in time, so mid-session reads are valid.
func (o *Ordered) Fragments() []Fragment {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Fragment, len(o.frags))
	copy(out, o.frags)
	return out
}

func (o *Ordered) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.frags)
}

// WriteJSONLines writes the transcript as one JSON object per line.
func (o *Ordered) WriteJSONLines(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, f := range o.Fragments() {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}

// User is one pre-registered speaker and their transcript.
type User struct {
	ID         string
	Transcript *Ordered
}

func NewUser(id string) *User {
	return &User{ID: id, Transcript: NewOrdered()}
}
