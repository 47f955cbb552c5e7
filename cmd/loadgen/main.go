package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/mohammed-shakir/geofeature-cache/internal/core/model"
)

type Config struct {
	TargetURL       string
	Users           int
	Duration        time.Duration
	ThinkTime       time.Duration
	Span            float64
	PanFrac         float64
	JumpProb        float64
	ZoomProb        float64
	ZipfS           float64
	ZipfV           float64
	OutputPrefix    string
	RequestTimeout  time.Duration
	AppendTimestamp bool
	Seed            int64
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.TargetURL, "target", "http://localhost:8090/features", "feature cache /features URL")
	flag.IntVar(&cfg.Users, "users", 16, "Concurrent simulated map users")
	flag.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Test duration")
	flag.DurationVar(&cfg.ThinkTime, "think", 50*time.Millisecond, "Pause between a user's moves")
	flag.Float64Var(&cfg.Span, "span", 0.5, "Initial viewport height/width in degrees")
	flag.Float64Var(&cfg.PanFrac, "pan", 0.15, "Max pan per step as a fraction of the viewport")
	flag.Float64Var(&cfg.JumpProb, "jump", 0.03, "Probability of jumping to another hotspot")
	flag.Float64Var(&cfg.ZoomProb, "zoom", 0.2, "Probability of zooming in or out")
	flag.Float64Var(&cfg.ZipfS, "zipf-s", 1.3, "Zipf parameter s (>1) for hotspot choice")
	flag.Float64Var(&cfg.ZipfV, "zipf-v", 1.0, "Zipf parameter v (>=1)")
	flag.StringVar(&cfg.OutputPrefix, "out", "results/loadgen", "Output file prefix (JSON/CSV)")
	flag.DurationVar(&cfg.RequestTimeout, "timeout", 10*time.Second, "Per-request timeout")
	flag.BoolVar(&cfg.AppendTimestamp, "append-ts", true, "Append timestamp to output prefix")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time based)")
	flag.Parse()
	return cfg
}

// request result (one sample per request)
type sample struct {
	Timestamp time.Time
	Latency   time.Duration
	Status    int
	ErrorMsg  string
	User      int
	Move      string
	Features  int
	Bounds    model.ViewportBounds
}

type summary struct {
	StartTime     time.Time        `json:"start"`
	EndTime       time.Time        `json:"end"`
	DurationSec   float64          `json:"duration_sec"`
	TotalRequests int64            `json:"total"`
	SuccessCount  int64            `json:"success"`
	ErrorCount    int64            `json:"errors"`
	EmptyCount    int64            `json:"empty"`
	ThroughputRPS float64          `json:"throughput_rps"`
	P50Ms         float64          `json:"p50_ms"`
	P95Ms         float64          `json:"p95_ms"`
	P99Ms         float64          `json:"p99_ms"`
	Moves         map[string]int64 `json:"moves"`
	Users         int              `json:"users"`
	Seed          int64            `json:"seed"`
	TargetURL     string           `json:"target"`
}

type aggregatedResult struct {
	total   int64
	success int64
	errors  int64
	empty   int64
	moves   map[string]int64
	latMs   []float64
}

func main() {
	cfg := loadConfig()
	if err := os.MkdirAll(filepath.Dir(cfg.OutputPrefix), 0o750); err != nil {
		log.Fatalf("mkdir results: %v", err)
	}
	prefix := cfg.OutputPrefix
	if cfg.AppendTimestamp {
		prefix = fmt.Sprintf("%s_%s", prefix, time.Now().UTC().Format("20060102_150405Z"))
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		log.Fatalf("parse target: %v", err)
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:          1024,
			MaxIdleConnsPerHost:   256,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   4 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
		Timeout: cfg.RequestTimeout,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	csvPath := prefix + "_samples.csv"
	jsonPath := prefix + "_summary.json"
	csvFile, err := os.Create(filepath.Clean(csvPath))
	if err != nil {
		log.Printf("open csv: %v", err)
		return
	}
	defer func() { _ = csvFile.Close() }()
	csvWriter := csv.NewWriter(csvFile)

	samplesChan := make(chan sample, 4096)
	resultsChan := make(chan aggregatedResult, 1)
	go func() {
		_ = csvWriter.Write([]string{"timestamp", "latency_ms", "status", "error", "user", "move", "features", "bounds"})
		agg := aggregatedResult{moves: map[string]int64{}, latMs: make([]float64, 0, 1<<16)}
		for s := range samplesChan {
			agg.total++
			agg.moves[s.Move]++
			if s.ErrorMsg == "" && s.Status >= 200 && s.Status < 300 {
				agg.success++
				agg.latMs = append(agg.latMs, float64(s.Latency.Microseconds())/1000.0)
				if s.Features == 0 {
					agg.empty++
				}
			} else {
				agg.errors++
			}
			_ = csvWriter.Write([]string{
				s.Timestamp.UTC().Format(time.RFC3339Nano),
				fmt.Sprintf("%.3f", float64(s.Latency.Microseconds())/1000.0),
				fmt.Sprintf("%d", s.Status),
				s.ErrorMsg,
				fmt.Sprintf("%d", s.User),
				s.Move,
				fmt.Sprintf("%d", s.Features),
				s.Bounds.String(),
			})
		}
		csvWriter.Flush()
		if err := csvWriter.Error(); err != nil {
			log.Printf("csv flush error: %v", err)
		}
		resultsChan <- agg
	}()

	startTime := time.Now()
	log.Printf("loadgen start target=%s dur=%s users=%d span=%.2f pan=%.2f jump=%.2f zoom=%.2f seed=%d",
		cfg.TargetURL, cfg.Duration, cfg.Users, cfg.Span, cfg.PanFrac, cfg.JumpProb, cfg.ZoomProb, cfg.Seed)

	var wg sync.WaitGroup
	for user := range cfg.Users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewSource(cfg.Seed + int64(user) + 1))
			wk := newWalker(r, cfg.ZipfS, cfg.ZipfV, cfg.Span, cfg.PanFrac, cfg.JumpProb, cfg.ZoomProb)
			mv := "open"
			for {
				s := fetch(ctx, httpClient, *target, wk.bounds())
				s.User, s.Move = user, mv
				select {
				case samplesChan <- s:
				case <-ctx.Done():
					return
				}
				select {
				case <-time.After(cfg.ThinkTime):
				case <-ctx.Done():
					return
				}
				mv = wk.step().String()
			}
		}()
	}

	go func() {
		<-ctx.Done()
		wg.Wait()
		close(samplesChan)
	}()

	agg := <-resultsChan
	endTime := time.Now()
	elapsed := endTime.Sub(startTime).Seconds()

	sort.Float64s(agg.latMs)
	p50 := percentile(agg.latMs, 50)
	p95 := percentile(agg.latMs, 95)
	p99 := percentile(agg.latMs, 99)

	runSummary := summary{
		StartTime:     startTime.UTC(),
		EndTime:       endTime.UTC(),
		DurationSec:   elapsed,
		TotalRequests: agg.total,
		SuccessCount:  agg.success,
		ErrorCount:    agg.errors,
		EmptyCount:    agg.empty,
		ThroughputRPS: float64(agg.total) / elapsed,
		P50Ms:         p50,
		P95Ms:         p95,
		P99Ms:         p99,
		Moves:         agg.moves,
		Users:         cfg.Users,
		Seed:          cfg.Seed,
		TargetURL:     cfg.TargetURL,
	}

	jsonFile, err := os.Create(filepath.Clean(jsonPath))
	if err == nil {
		enc := json.NewEncoder(jsonFile)
		enc.SetIndent("", "  ")
		_ = enc.Encode(runSummary)
		_ = jsonFile.Close()
	}

	log.Printf("done: total=%d succ=%d err=%d empty=%d thr=%.2f rps p50=%.1fms p95=%.1fms p99=%.1fms",
		agg.total, agg.success, agg.errors, agg.empty, runSummary.ThroughputRPS, p50, p95, p99)
	log.Printf("wrote %s and %s", jsonPath, csvPath)
}

func fetch(ctx context.Context, c *http.Client, target url.URL, b model.ViewportBounds) sample {
	q := target.Query()
	q.Set("minLat", model.FormatCoord(b.MinLat))
	q.Set("minLng", model.FormatCoord(b.MinLng))
	q.Set("maxLat", model.FormatCoord(b.MaxLat))
	q.Set("maxLng", model.FormatCoord(b.MaxLng))
	target.RawQuery = q.Encode()

	s := sample{Timestamp: time.Now(), Bounds: b}
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	s.Latency = time.Since(s.Timestamp)
	if err != nil {
		s.ErrorMsg = err.Error()
		return s
	}
	defer func() { _ = resp.Body.Close() }()
	s.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.ErrorMsg = fmt.Sprintf("status=%d", resp.StatusCode)
		_, _ = io.Copy(io.Discard, resp.Body)
		return s
	}
	var body struct {
		Features []json.RawMessage `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		s.ErrorMsg = "decode: " + err.Error()
		return s
	}
	s.Features = len(body.Features)
	return s
}
