package util

import (
	"fmt"
	"path"
	"strings"

	"github.com/unalkalkan/TaleWeaver/pkg/types"
)

// LibraryPath returns the storage key of a collection snapshot
func LibraryPath(kind types.CollectionKind) string {
	return path.Join("library", string(kind)+".json")
}

// TalePrefix returns the listing prefix for stored tales of one kind
func TalePrefix(kind types.CollectionKind) string {
	return path.Join("tales", string(kind)) + "/"
}

// TalePath returns the storage key of a single stored tale
func TalePath(kind types.CollectionKind, id string) string {
	return TalePrefix(kind) + id + ".json"
}

// TaleIDFromPath extracts the tale id from a key built by TalePath
func TaleIDFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), ".json")
}

// AudioKey names a page clip inside a run's clip cache and in exports
func AudioKey(page int) string {
	return fmt.Sprintf("%d", page)
}

// AudioFileName returns the archive name of a page clip
func AudioFileName(page int, format string) string {
	return fmt.Sprintf("audio/page-%03d.%s", page+1, format)
}

// SniffAudioFormat guesses the container of a clip from its magic bytes,
// falling back to mp3, which is what the narration backend returns.
func SniffAudioFormat(clip []byte) string {
	switch {
	case len(clip) >= 12 && string(clip[:4]) == "RIFF" && string(clip[8:12]) == "WAVE":
		return "wav"
	case len(clip) >= 4 && string(clip[:4]) == "OggS":
		return "ogg"
	default:
		return "mp3"
	}
}
