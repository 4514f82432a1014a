package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	var samples []time.Duration
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	l := summarize(samples)
	assert.Equal(t, 100, l.Count)
	assert.Equal(t, 1.0, l.Min)
	assert.Equal(t, 100.0, l.Max)
	assert.InDelta(t, 50.5, l.Avg, 0.001)
	assert.Equal(t, 51.0, l.P50)
	assert.Equal(t, 100.0, l.P99)
	assert.Equal(t, time.Duration(100)*time.Millisecond, samples[0], "input must not be reordered")
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, LatencyStats{}, summarize(nil))
}

func TestResult(t *testing.T) {
	s := newStats()
	s.add(&s.Attempts, 4)
	s.add(&s.Connected, 3)
	s.recordError(errors.New("dial tcp: connection refused"))
	s.recordError(errors.New("dial tcp: connection refused"))
	s.end = s.start.Add(2 * time.Second)

	r := s.result(Config{Mode: "presence"})
	assert.Equal(t, 75.0, r.SuccessRate)
	assert.Equal(t, int64(2), r.Errors["dial tcp: connection refused"])
	assert.Equal(t, 2.0, r.Seconds)
}

func TestUsernameFor(t *testing.T) {
	assert.Equal(t, "bench-7", usernameFor("bench-", 7))
}
