package main

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats 压测计数，计数器用原子操作，延迟样本和错误表加锁
type Stats struct {
	Attempts     int64
	Connected    int64
	Failed       int64
	Current      int64
	Disconnects  int64
	LoginsOK     int64
	Sent         int64
	Acked        int64
	AckFailed    int64
	Received     int64
	PresenceSeen int64
	ServerErrors int64

	mu            sync.Mutex
	connLatencies []time.Duration
	ackLatencies  []time.Duration
	errors        map[string]int64

	start time.Time
	end   time.Time
}

func newStats() *Stats {
	return &Stats{errors: make(map[string]int64), start: time.Now()}
}

func (s *Stats) add(field *int64, n int64) { atomic.AddInt64(field, n) }

func (s *Stats) recordConn(d time.Duration) {
	s.mu.Lock()
	s.connLatencies = append(s.connLatencies, d)
	s.mu.Unlock()
}

func (s *Stats) recordAck(d time.Duration) {
	s.mu.Lock()
	s.ackLatencies = append(s.ackLatencies, d)
	s.mu.Unlock()
}

func (s *Stats) recordError(err error) {
	msg := err.Error()
	if len(msg) > 60 {
		msg = msg[:60]
	}
	s.mu.Lock()
	s.errors[msg]++
	s.mu.Unlock()
}

// LatencyStats 毫秒
type LatencyStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Avg    float64 `json:"avg"`
	P50    float64 `json:"p50"`
	P90    float64 `json:"p90"`
	P99    float64 `json:"p99"`
	StdDev float64 `json:"std_dev"`
}

func summarize(samples []time.Duration) LatencyStats {
	if len(samples) == 0 {
		return LatencyStats{}
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	toMs := func(d float64) float64 { return d / float64(time.Millisecond) }

	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}
	avg := sum / float64(len(sorted))
	var variance float64
	for _, v := range sorted {
		diff := float64(v) - avg
		variance += diff * diff
	}
	variance /= float64(len(sorted))

	pct := func(p int) float64 {
		idx := len(sorted) * p / 100
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return toMs(float64(sorted[idx]))
	}
	return LatencyStats{
		Count:  len(sorted),
		Min:    toMs(float64(sorted[0])),
		Max:    toMs(float64(sorted[len(sorted)-1])),
		Avg:    toMs(avg),
		P50:    pct(50),
		P90:    pct(90),
		P99:    pct(99),
		StdDev: toMs(math.Sqrt(variance)),
	}
}

// Result 压测结果
type Result struct {
	Mode         string           `json:"mode"`
	Target       string           `json:"target"`
	Attempts     int64            `json:"attempts"`
	Connected    int64            `json:"connected"`
	Failed       int64            `json:"failed"`
	SuccessRate  float64          `json:"success_rate_percent"`
	Disconnects  int64            `json:"disconnects"`
	LoginsOK     int64            `json:"logins_ok"`
	Sent         int64            `json:"frames_sent"`
	Acked        int64            `json:"messages_acked"`
	AckFailed    int64            `json:"messages_ack_failed"`
	Received     int64            `json:"frames_received"`
	PresenceSeen int64            `json:"presence_frames"`
	ServerErrors int64            `json:"server_errors"`
	ConnLatency  LatencyStats     `json:"conn_latency_ms"`
	AckLatency   LatencyStats     `json:"ack_latency_ms"`
	Errors       map[string]int64 `json:"errors,omitempty"`
	Seconds      float64          `json:"seconds"`
}

func (s *Stats) result(cfg Config) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Result{
		Mode:         cfg.Mode,
		Target:       cfg.Target,
		Attempts:     atomic.LoadInt64(&s.Attempts),
		Connected:    atomic.LoadInt64(&s.Connected),
		Failed:       atomic.LoadInt64(&s.Failed),
		Disconnects:  atomic.LoadInt64(&s.Disconnects),
		LoginsOK:     atomic.LoadInt64(&s.LoginsOK),
		Sent:         atomic.LoadInt64(&s.Sent),
		Acked:        atomic.LoadInt64(&s.Acked),
		AckFailed:    atomic.LoadInt64(&s.AckFailed),
		Received:     atomic.LoadInt64(&s.Received),
		PresenceSeen: atomic.LoadInt64(&s.PresenceSeen),
		ServerErrors: atomic.LoadInt64(&s.ServerErrors),
		ConnLatency:  summarize(s.connLatencies),
		AckLatency:   summarize(s.ackLatencies),
		Errors:       s.errors,
		Seconds:      s.end.Sub(s.start).Seconds(),
	}
	if r.Attempts > 0 {
		r.SuccessRate = float64(r.Connected) / float64(r.Attempts) * 100
	}
	return r
}
