package diag

import (
	"context"
	"strings"
	"time"
)

// BenchPrompt is deliberately long enough to force a multi-sentence
// completion so the words/sec figure means something.
const BenchPrompt = "Describe, in three or four sentences, what a reverse proxy does."

// BenchResult is one timed generation round-trip.
type BenchResult struct {
	Words       int
	Elapsed     time.Duration
	WordsPerSec float64
}

// RunBench sends one generation request through the engine and measures
// end-to-end throughput in whitespace-delimited words per second.
func RunBench(ctx context.Context, engine Engine) (BenchResult, error) {
	start := time.Now()
	resp, err := engine.Generate(ctx, BenchPrompt)
	elapsed := time.Since(start)
	if err != nil {
		return BenchResult{}, benchmarkFailedError{cause: err}
	}
	words := len(strings.Fields(resp.Response))
	r := BenchResult{Words: words, Elapsed: elapsed}
	if secs := elapsed.Seconds(); secs > 0 {
		r.WordsPerSec = float64(words) / secs
	}
	return r, nil
}
