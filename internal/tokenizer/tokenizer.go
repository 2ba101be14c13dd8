// Package tokenizer provides deterministic token counting using the
// cl100k_base BPE encoding. Counts feed embedding batch sizing and the
// per-document token statistics stored alongside embeddings.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"mcpdocs/internal/docerr"
)

const encodingName = "cl100k_base"

var (
	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
)

func get() (*tiktoken.Tiktoken, error) {
	once.Do(func() {
		enc, initErr = tiktoken.GetEncoding(encodingName)
	})
	if initErr != nil {
		return nil, docerr.Wrap(docerr.KindTokenizer, initErr, "loading %s encoding", encodingName)
	}
	return enc, nil
}

// CountTokens returns the number of BPE tokens in text.
func CountTokens(text string) (int, error) {
	e, err := get()
	if err != nil {
		return 0, err
	}
	return len(e.Encode(text, nil, nil)), nil
}

// CountTokensBatch counts tokens for each text. Returns the per-text counts
// and the total.
func CountTokensBatch(texts []string) ([]int, int, error) {
	e, err := get()
	if err != nil {
		return nil, 0, err
	}
	counts := make([]int, len(texts))
	total := 0
	for i, t := range texts {
		n := len(e.Encode(t, nil, nil))
		counts[i] = n
		total += n
	}
	return counts, total, nil
}
