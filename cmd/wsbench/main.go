package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Config 压测配置
type Config struct {
	Mode        string        // presence, messaging
	Target      string        // WebSocket URL
	Conns       int           // 总连接数
	Duration    time.Duration // 压测持续时间
	Ramp        time.Duration // 爬坡时间
	Interval    time.Duration // 每连接发送间隔
	PayloadSize int           // 私信长度
	UserPrefix  string        // 用户名前缀
	Output      string        // text, json
	Verbose     bool
}

func main() {
	cfg := parseFlags()
	if cfg.Mode != "presence" && cfg.Mode != "messaging" {
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", cfg.Mode)
		os.Exit(2)
	}

	fmt.Println("=== wsbench - warpong realtime load ===")
	fmt.Printf("mode: %s  target: %s  conns: %d  duration: %s  ramp: %s\n\n",
		cfg.Mode, cfg.Target, cfg.Conns, cfg.Duration, cfg.Ramp)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stats := newStats()
	run(ctx, cfg, stats)
	stats.end = time.Now()

	result := stats.result(cfg)
	if cfg.Output == "json" {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(data))
		return
	}
	printText(result)
}

func parseFlags() Config {
	cfg := Config{}
	flag.StringVar(&cfg.Mode, "mode", "presence", "presence | messaging")
	flag.StringVar(&cfg.Target, "target", "ws://localhost:3000/ws", "WebSocket URL")
	flag.IntVar(&cfg.Conns, "conns", 200, "total connections")
	flag.DurationVar(&cfg.Duration, "duration", time.Minute, "total run time")
	flag.DurationVar(&cfg.Ramp, "ramp", 10*time.Second, "time to open all connections")
	flag.DurationVar(&cfg.Interval, "interval", time.Second, "per-connection send interval")
	flag.IntVar(&cfg.PayloadSize, "payload-size", 64, "message body size in bytes")
	flag.StringVar(&cfg.UserPrefix, "user-prefix", "bench-", "username prefix")
	flag.StringVar(&cfg.Output, "output", "text", "text | json")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "print per-connection errors")
	flag.Parse()
	return cfg
}

func run(ctx context.Context, cfg Config, stats *Stats) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	perConn := cfg.Ramp / time.Duration(max(cfg.Conns, 1))
	if perConn <= 0 {
		perConn = time.Millisecond
	}

	bar := progressbar.NewOptions(cfg.Conns,
		progressbar.OptionSetDescription("connecting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("conn"),
	)

	var wg sync.WaitGroup
	ticker := time.NewTicker(perConn)
	defer ticker.Stop()

ramp:
	for id := 0; id < cfg.Conns; id++ {
		select {
		case <-ctx.Done():
			break ramp
		case <-ticker.C:
		}
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c, err := dial(ctx, id, cfg, stats)
			bar.Add(1)
			if err != nil {
				if cfg.Verbose {
					fmt.Printf("conn %d failed: %v\n", id, err)
				}
				return
			}
			drive(ctx, c, cfg)
		}(id)
	}
	bar.Finish()
	fmt.Println()

	report := time.NewTicker(5 * time.Second)
	defer report.Stop()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		select {
		case <-done:
			return
		case <-report.C:
			printProgress(stats)
		}
	}
}

// drive 登录后按间隔发送，ctx 结束时断开
func drive(ctx context.Context, c *client, cfg Config) {
	defer func() {
		c.close()
		atomic.AddInt64(&c.stats.Current, -1)
	}()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		c.readLoop(cfg.Duration + time.Minute)
	}()

	if err := c.login(); err != nil {
		c.stats.recordError(err)
		return
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(c.id)))
	body := strings.Repeat("x", cfg.PayloadSize)
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-readDone:
			return
		case <-ticker.C:
			var err error
			switch cfg.Mode {
			case "messaging":
				peer := rng.Intn(max(cfg.Conns, 1))
				err = c.sendMessage(usernameFor(cfg.UserPrefix, peer), body)
			default:
				err = c.sendLocation(rng)
			}
			if err != nil {
				c.stats.recordError(err)
				return
			}
		}
	}
}

func printProgress(s *Stats) {
	fmt.Printf("[%s] current: %d | ok: %d | failed: %d | sent: %d | acked: %d | recv: %d\n",
		time.Since(s.start).Round(time.Second),
		atomic.LoadInt64(&s.Current),
		atomic.LoadInt64(&s.Connected),
		atomic.LoadInt64(&s.Failed),
		atomic.LoadInt64(&s.Sent),
		atomic.LoadInt64(&s.Acked),
		atomic.LoadInt64(&s.Received))
}

func printText(r Result) {
	fmt.Println()
	fmt.Println("==================== result ====================")
	fmt.Printf("attempts:        %d\n", r.Attempts)
	fmt.Printf("connected:       %d (%.2f%%)\n", r.Connected, r.SuccessRate)
	fmt.Printf("failed:          %d\n", r.Failed)
	fmt.Printf("disconnects:     %d\n", r.Disconnects)
	fmt.Printf("logins ok:       %d\n", r.LoginsOK)
	fmt.Printf("frames sent:     %d\n", r.Sent)
	fmt.Printf("frames received: %d\n", r.Received)
	fmt.Printf("presence frames: %d\n", r.PresenceSeen)
	fmt.Printf("server errors:   %d\n", r.ServerErrors)
	printLatency("connect latency (ms)", r.ConnLatency)
	if r.Mode == "messaging" {
		fmt.Printf("messages acked:  %d (failed %d)\n", r.Acked, r.AckFailed)
		printLatency("ack latency (ms)", r.AckLatency)
	}
	if len(r.Errors) > 0 {
		fmt.Println("--- errors ---")
		for msg, n := range r.Errors {
			fmt.Printf("%s: %d\n", msg, n)
		}
	}
	fmt.Printf("--- %.2f seconds ---\n", r.Seconds)
}

func printLatency(title string, l LatencyStats) {
	fmt.Printf("--- %s ---\n", title)
	fmt.Printf("n=%d min=%.2f avg=%.2f p50=%.2f p90=%.2f p99=%.2f max=%.2f stddev=%.2f\n",
		l.Count, l.Min, l.Avg, l.P50, l.P90, l.P99, l.Max, l.StdDev)
}
