package tokenizer

import "testing"

// The encoding is fetched on first use; skip when that fails (offline CI).
func requireEncoding(t *testing.T) {
	t.Helper()
	if _, err := get(); err != nil {
		t.Skipf("cl100k_base encoding unavailable: %v", err)
	}
}

func TestCountTokens(t *testing.T) {
	requireEncoding(t)

	n, err := CountTokens("hello world")
	if err != nil {
		t.Fatalf("CountTokens failed: %v", err)
	}
	if n <= 0 {
		t.Errorf("token count = %d, want > 0", n)
	}

	empty, err := CountTokens("")
	if err != nil {
		t.Fatalf("CountTokens failed: %v", err)
	}
	if empty != 0 {
		t.Errorf("empty string counted %d tokens", empty)
	}
}

func TestCountTokensDeterministic(t *testing.T) {
	requireEncoding(t)

	const text = "The crawler extracts documentation blocks from rendered pages."
	a, _ := CountTokens(text)
	b, _ := CountTokens(text)
	if a != b {
		t.Errorf("counts differ: %d vs %d", a, b)
	}
}

func TestCountTokensBatch(t *testing.T) {
	requireEncoding(t)

	texts := []string{"one", "two two", "three three three"}
	counts, total, err := CountTokensBatch(texts)
	if err != nil {
		t.Fatalf("CountTokensBatch failed: %v", err)
	}
	if len(counts) != len(texts) {
		t.Fatalf("got %d counts", len(counts))
	}
	sum := 0
	for _, c := range counts {
		sum += c
	}
	if sum != total {
		t.Errorf("total = %d, sum of counts = %d", total, sum)
	}
}
