package storage

import (
	"strings"

	"github.com/gitnitzanimgit/Bucket-To-Deepgram/internal/snippet"
)

// GroupTSKeysByRoom buckets .ts object keys by room. The room is extracted
// with the same rule the snippet identifier uses, so grouping and identity
// parsing can never disagree about which room a key belongs to. Keys that
// are not .ts files or fail to parse are skipped.
func GroupTSKeysByRoom(keys []string) map[string][]string {
	rooms := make(map[string][]string)
	for _, key := range keys {
		if !strings.HasSuffix(key, ".ts") {
			continue
		}
		room, err := snippet.Room(key)
		if err != nil {
			continue
		}
		rooms[room] = append(rooms[room], key)
	}
	return rooms
}
