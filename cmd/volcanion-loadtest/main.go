// volcanion-loadtest drives an in-process engine through verify, refresh
// and permission-check phases and prints latency percentiles.
//
// Redis comes from --redis, $REDIS_ADDR or an embedded miniredis. The
// relational side is always store/memory, so the numbers isolate the
// engine and the session cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	volcanion "github.com/rickymta/volcanion-auth"
	"github.com/rickymta/volcanion-auth/password"
	"github.com/rickymta/volcanion-auth/store/memory"
)

type accountState struct {
	accountID string
	mu        sync.Mutex
	pair      *volcanion.TokenPair
}

type settings struct {
	accounts    int
	concurrency int
	ops         int
	redisAddr   string
	bcryptCost  int
}

func main() {
	var s settings
	fs := pflag.NewFlagSet("volcanion-loadtest", pflag.ContinueOnError)
	fs.IntVar(&s.accounts, "accounts", 1000, "number of accounts to seed and log in")
	fs.IntVar(&s.concurrency, "concurrency", 64, "number of concurrent workers")
	fs.IntVar(&s.ops, "ops", 20000, "operations per phase")
	fs.StringVar(&s.redisAddr, "redis", "", "redis address; $REDIS_ADDR or miniredis when empty")
	fs.IntVar(&s.bcryptCost, "bcrypt-cost", 4, "bcrypt cost used for seeded passwords")
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if s.accounts <= 0 || s.concurrency <= 0 || s.ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency and ops must be > 0")
		os.Exit(2)
	}
	if err := run(context.Background(), s); err != nil {
		fmt.Fprintf(os.Stderr, "loadtest: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, s settings) error {
	addr := s.redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return fmt.Errorf("start miniredis: %w", err)
		}
		defer mr.Close()
		addr = mr.Addr()
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		fmt.Printf("using redis at %s\n", addr)
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer client.Close()

	cfg := volcanion.DefaultConfig()
	cfg.Token.Access.Key = "loadtest-access-secret-0123456789abcdef"
	cfg.Token.Refresh.Key = "loadtest-refresh-secret-0123456789abcdef"
	cfg.Password.BcryptCost = s.bcryptCost
	cfg.Metrics.EnableLatencyHistograms = true

	st := memory.New()
	engine, err := volcanion.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountProvider(st).
		WithPermissionStore(st).
		WithTokenRepository(st).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Printf("seeding %d accounts...\n", s.accounts)
	startSeed := time.Now()
	states, err := seed(ctx, engine, st, s)
	if err != nil {
		return err
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	verify := runPhase(states, s, func(state *accountState) error {
		state.mu.Lock()
		token := state.pair.AccessToken
		state.mu.Unlock()
		_, err := engine.VerifyAccess(ctx, token)
		return err
	})
	refresh := runPhase(states, s, func(state *accountState) error {
		state.mu.Lock()
		defer state.mu.Unlock()
		next, err := engine.Refresh(ctx, state.pair.RefreshToken)
		if err != nil {
			return err
		}
		state.pair = next
		return nil
	})
	check := runPhase(states, s, func(state *accountState) error {
		_, err := engine.HasPermission(ctx, state.accountID, "reports", "read")
		return err
	})

	fmt.Println("---- results ----")
	printStats("verify", verify)
	printStats("refresh", refresh)
	printStats("permission", check)
	return nil
}

func seed(ctx context.Context, engine *volcanion.Engine, st *memory.Store, s settings) ([]*accountState, error) {
	hasher, err := password.New(password.Config{Algorithm: password.AlgorithmBcrypt, BcryptCost: s.bcryptCost})
	if err != nil {
		return nil, err
	}
	digest, err := hasher.Hash("loadtest-password")
	if err != nil {
		return nil, err
	}

	graph := engine.Graph()
	role, err := graph.CreateRole(ctx, "reader", "")
	if err != nil {
		return nil, err
	}
	perm, err := graph.CreatePermission(ctx, "reports:read", "reports", "read", "")
	if err != nil {
		return nil, err
	}
	if _, _, err := graph.AssignEdge(ctx, role.ID, perm.ID); err != nil {
		return nil, err
	}

	states := make([]*accountState, s.accounts)
	for i := range states {
		id := fmt.Sprintf("acct-%d", i)
		email := fmt.Sprintf("user%d@loadtest.local", i)
		st.PutAccount(volcanion.Account{ID: id, Email: email, PasswordHash: digest, Active: true, EmailVerified: true})
		if i%2 == 0 {
			if _, err := graph.GrantRole(ctx, id, role.ID, "loadtest", nil); err != nil {
				return nil, err
			}
		}
		pair, err := engine.Login(ctx, volcanion.LoginRequest{Email: email, Password: "loadtest-password", Origin: "127.0.0.1"})
		if err != nil {
			return nil, fmt.Errorf("login %s: %w", email, err)
		}
		states[i] = &accountState{accountID: id, pair: pair}
	}
	return states, nil
}

func runPhase(states []*accountState, s settings, op func(*accountState) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, s.ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < s.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				if int(atomic.AddInt64(&cursor, 1)) > s.ops {
					return
				}
				state := states[r.Intn(len(states))]
				t0 := time.Now()
				err := op(state)
				d := time.Since(t0)
				if err != nil {
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
		return phaseStats{total: total, failures: failures}
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

// percentile expects sorted samples.
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
	fmt.Printf("%-10s ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
