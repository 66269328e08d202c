package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/session"
	"github.com/realchillguyclub/backend-sub000/session/memory"
)

type chain struct {
	userID  string
	access  string
	current string
	spent   string
	mu      sync.Mutex
}

// skewClock lets the replay phase jump past the grace window without sleeping.
type skewClock struct {
	offset atomic.Int64
}

func (c *skewClock) Now() time.Time {
	return time.Now().Add(time.Duration(c.offset.Load()))
}

func (c *skewClock) Advance(d time.Duration) {
	c.offset.Add(int64(d))
}

func main() {
	var (
		sessions    = flag.Int("sessions", 20000, "number of session families to seed")
		concurrency = flag.Int("concurrency", 256, "number of concurrent workers")
		ops         = flag.Int("ops", 100000, "operations per phase (validate + reissue)")
		replays     = flag.Int("replays", 1000, "spent refresh tokens replayed after the grace window")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		reissueMax  = flag.Int("reissue-limit", 0, "per-IP reissue attempts per minute; 0 disables the limiter")
		clientIP    = flag.String("client-ip", "203.0.113.7", "client ip attached to every call")
	)
	flag.Parse()

	if *sessions <= 0 || *concurrency <= 0 || *ops <= 0 || *replays < 0 {
		fmt.Fprintln(os.Stderr, "sessions, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := auth.WithClientIP(context.Background(), *clientIP)

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	cfg := auth.DefaultConfig()
	cfg.JWT.Secret = []byte("reissue-loadtest-secret-0123456789abcdef")
	cfg.RateLimit.ReissueMaxAttempts = *reissueMax

	clock := &skewClock{}
	store := memory.New()
	engine, err := auth.New().
		WithConfig(cfg).
		WithStore(store).
		WithRedis(client).
		WithClock(clock.Now).
		WithLogger(slog.New(slog.DiscardHandler)).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "build engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	chains := make([]chain, *sessions)
	fmt.Printf("seeding %d sessions...\n", *sessions)
	startSeed := time.Now()
	for i := 0; i < *sessions; i++ {
		userID := fmt.Sprintf("user-%d", i)
		pair, err := engine.IssueSession(ctx, auth.IssueRequest{UserID: userID, MobileType: session.MobileDesktop})
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue failed: %v\n", err)
			os.Exit(1)
		}
		chains[i] = chain{userID: userID, access: pair.AccessToken, current: pair.RefreshToken}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	validateStats := runValidatePhase(engine, chains, *ops, *concurrency)
	reissueStats := runReissuePhase(ctx, engine, chains, *ops, *concurrency)

	clock.Advance(cfg.Rotation.GraceWindow + time.Second)
	replayStats, detected := runReplayPhase(ctx, engine, chains, *replays, *concurrency)

	fmt.Println("---- results ----")
	printStats("validate", validateStats)
	printStats("reissue", reissueStats)
	printStats("replay", replayStats)
	fmt.Printf("replay: reuse_detected=%d records=%d\n", detected, store.Len())

	snap := engine.MetricsSnapshot()
	fmt.Printf("metrics: reissue_success=%d reuse_detected=%d sessions_revoked=%d\n",
		snap.Counters[auth.MetricReissueSuccess],
		snap.Counters[auth.MetricReuseDetected],
		snap.Counters[auth.MetricSessionsRevoked],
	)
}

func runValidatePhase(engine *auth.Engine, chains []chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 7919, func(r *rand.Rand, _ int) (time.Duration, bool) {
		c := &chains[r.Intn(len(chains))]
		t0 := time.Now()
		_, err := engine.ValidateAccess(c.access)
		return time.Since(t0), err == nil
	})
}

func runReissuePhase(ctx context.Context, engine *auth.Engine, chains []chain, ops, concurrency int) phaseStats {
	return runPhase(ops, concurrency, 6151, func(r *rand.Rand, _ int) (time.Duration, bool) {
		c := &chains[r.Intn(len(chains))]

		c.mu.Lock()
		defer c.mu.Unlock()
		t0 := time.Now()
		pair, err := engine.Reissue(ctx, c.current, "")
		d := time.Since(t0)
		if err != nil {
			return d, false
		}
		c.spent = c.current
		c.current = pair.RefreshToken
		c.access = pair.AccessToken
		return d, true
	})
}

// runReplayPhase presents already-rotated tokens; each is expected to be
// rejected as reuse and take its family down.
func runReplayPhase(ctx context.Context, engine *auth.Engine, chains []chain, replays, concurrency int) (phaseStats, int64) {
	var candidates []*chain
	for i := range chains {
		if chains[i].spent != "" {
			candidates = append(candidates, &chains[i])
		}
	}
	if len(candidates) > replays {
		candidates = candidates[:replays]
	}
	if len(candidates) == 0 {
		return phaseStats{}, 0
	}

	var detected atomic.Int64
	stats := runPhase(len(candidates), concurrency, 4271, func(_ *rand.Rand, i int) (time.Duration, bool) {
		c := candidates[i]
		t0 := time.Now()
		_, err := engine.Reissue(ctx, c.spent, "")
		d := time.Since(t0)
		if errors.Is(err, auth.ErrReuseDetected) {
			detected.Add(1)
			return d, true
		}
		return d, false
	})
	return stats, detected.Load()
}

// runPhase spreads ops calls of fn over concurrency workers. fn reports the
// measured latency and whether the call had the expected outcome.
func runPhase(ops, concurrency int, seed int64, fn func(r *rand.Rand, i int) (time.Duration, bool)) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*seed))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				d, ok := fn(r, i)
				if !ok {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	return computeStats(time.Since(start), latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
