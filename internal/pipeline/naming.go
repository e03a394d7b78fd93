package pipeline

import (
	"path"
	"strconv"
	"strings"

	"github.com/codebuildervaibhav/diarization-splitter/internal/media"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// ArchiveRoot is the top-level directory of every archive
const ArchiveRoot = "segments"

const defaultExt = media.DefaultExt

// SanitizeName turns a speaker label into a single safe path element
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < 0x20, r == 0x7f:
			continue
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	result := strings.Trim(b.String(), " .")
	if result == "" {
		return "_"
	}
	if runes := []rune(result); len(runes) > 100 {
		result = string(runes[:100])
	}
	return result
}

// ClipName returns the deterministic clip file name for a segment
func ClipName(seg types.Segment, ext string) string {
	if ext == "" {
		ext = defaultExt
	}
	return "segment_" + seg.StartLabel() + "_" + seg.EndLabel() + "." + ext
}

// namer hands out archive paths and appends _1, _2, ... when a path is
// already taken by an earlier segment of the same run.
type namer struct {
	ext  string
	used map[string]struct{}
}

func newNamer(ext string) *namer {
	return &namer{ext: ext, used: make(map[string]struct{})}
}

// next returns the first free archive path for seg without reserving it
func (n *namer) next(seg types.Segment) string {
	dir := path.Join(ArchiveRoot, SanitizeName(seg.Speaker))
	base := ClipName(seg, n.ext)
	candidate := path.Join(dir, base)

	stem := strings.TrimSuffix(base, path.Ext(base))
	for i := 1; ; i++ {
		if _, taken := n.used[candidate]; !taken {
			return candidate
		}
		candidate = path.Join(dir, stem+"_"+strconv.Itoa(i)+path.Ext(base))
	}
}

func (n *namer) reserve(rel string) {
	n.used[rel] = struct{}{}
}
