package memory

import "strings"

// TruncateForMemory cuts text to at most maxChars characters before the
// marker, preferring clean break points over a hard cut:
//
//  1. If the text fits, it is returned unchanged.
//  2. If a sentence boundary falls in the last 30% of the budget, cut
//     there and append the marker.
//  3. Otherwise, if a word boundary falls in the last 20%, cut there and
//     append "..." plus the marker.
//  4. Otherwise hard-cut at the budget and append "..." plus the marker.
func TruncateForMemory(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}

	cut := text[:maxChars]

	if idx := lastSentenceEnd(cut); idx > int(float64(maxChars)*0.7) {
		return cut[:idx+1] + " " + TruncationMarker
	}

	if idx := strings.LastIndex(cut, " "); idx > int(float64(maxChars)*0.8) {
		return cut[:idx] + "... " + TruncationMarker
	}

	return cut + "... " + TruncationMarker
}

// lastSentenceEnd returns the index of the last sentence-terminating
// punctuation in s, or -1 if none exists.
func lastSentenceEnd(s string) int {
	best := -1
	for _, punct := range []string{".", "!", "?"} {
		if idx := strings.LastIndex(s, punct); idx > best {
			best = idx
		}
	}
	return best
}
