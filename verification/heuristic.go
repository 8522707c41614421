package verification

import (
	"path"
	"strings"
)

// HeuristicModelType labels per-image results produced by the local fallback.
const HeuristicModelType = "fallback_heuristic"

// Filename substrings that suggest vegetation evidence. Deliberately weak:
// the heuristic only has to keep the workflow producing a full per-image list
// during ML outages, not be accurate.
var vegetationKeywords = []string{
	"mangrove",
	"tree",
	"forest",
	"vegetation",
	"coast",
	"green",
	"nature",
}

// sizeThreshold is the byte count above which an image is assumed to be a
// real photo rather than a thumbnail or placeholder.
const sizeThreshold = 100 * 1024

// Heuristic exposes the fallback verdict to callers outside the workflow,
// such as the single-image verification endpoint.
func Heuristic(ref string, size int) (detected bool, confidence float64) {
	return heuristicVerdict(ref, size)
}

// heuristicVerdict approximates per-image verification from file size and
// filename alone. Deterministic for a given input.
func heuristicVerdict(ref string, size int) (detected bool, confidence float64) {
	name := strings.ToLower(path.Base(ref))

	keyword := false
	for _, kw := range vegetationKeywords {
		if strings.Contains(name, kw) {
			keyword = true
			break
		}
	}

	bigEnough := size >= sizeThreshold

	switch {
	case keyword && bigEnough:
		return true, 0.65
	case keyword:
		return true, 0.55
	case bigEnough:
		return true, 0.5
	default:
		return false, 0.3
	}
}
