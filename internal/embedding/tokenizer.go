//go:build onnx

package embedding

import (
	"strings"

	"github.com/zeebo/xxh3"
)

const (
	clsTokenID int64 = 101
	sepTokenID int64 = 102
	unkTokenID int64 = 100
	padTokenID int64 = 0

	vocabFloor = 1000
	vocabSpan  = 29521
)

// tokenizeInto performs WordPiece-style tokenization for MiniLM models, writing
// input ids and the attention mask into the caller's buffers. Both buffers
// share one length, which is the sequence length; unused positions are padding.
func tokenizeInto(text string, ids, mask []int64) {
	maxLen := len(ids)
	for i := range ids {
		ids[i] = padTokenID
		mask[i] = 0
	}
	if maxLen < 2 {
		return
	}

	n := 0
	ids[n] = clsTokenID
	n++
	for _, w := range splitTokens(strings.ToLower(text)) {
		if n >= maxLen-1 {
			break
		}
		ids[n] = hashToken(w)
		n++
	}
	ids[n] = sepTokenID
	n++

	for i := 0; i < n; i++ {
		mask[i] = 1
	}
}

// hashToken maps a word into the MiniLM vocabulary range, skipping the special
// tokens below vocabFloor. It is a stable hash, not a vocabulary lookup.
func hashToken(word string) int64 {
	if word == "" {
		return unkTokenID
	}
	return int64(xxh3.HashString(word)%vocabSpan) + vocabFloor
}
