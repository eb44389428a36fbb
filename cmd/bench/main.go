// Command bench load-tests a running fleetdeck daemon: it seeds a fleet of
// accounts, drives vendor operations through the API at a configurable
// concurrency, and prints throughput and latency percentiles. Point the
// daemon at a staging vendor backend before running it.
package main

import (
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/fleetdeck/pkg/client"
)

type benchResult struct {
	lats    []time.Duration
	elapsed time.Duration
}

type runSummary struct {
	opsPerSec float64
	avg       time.Duration
	p50       time.Duration
	p90       time.Duration
	p99       time.Duration
	min       time.Duration
	max       time.Duration
	completed int
}

func main() {
	server := flag.String("server", "http://localhost:8080", "daemon URL")
	apiKey := flag.String("api-key", "", "daemon API key (or set FLEETDECK_API_KEY)")
	op := flag.String("op", "seats", "benchmark operation: seats, user, mixed, or matrix")
	fleet := flag.Int("fleet", 50, "number of accounts to seed")
	ops := flag.Int("ops", 10000, "total number of operations to run")
	concurrency := flag.Int("concurrency", 10, "number of concurrent goroutines")
	repeats := flag.Int("repeats", 1, "number of benchmark repeats per operation")
	repeatPause := flag.Duration("repeat-pause", 0, "pause between repeats (e.g. 500ms)")
	keep := flag.Bool("keep", false, "keep the seeded accounts after the run")
	flag.Parse()

	fmt.Printf("Fleetdeck Benchmark\n")
	fmt.Printf("  server:      %s\n", *server)
	fmt.Printf("  op:          %s\n", *op)
	fmt.Printf("  fleet:       %d\n", *fleet)
	fmt.Printf("  ops:         %d\n", *ops)
	fmt.Printf("  concurrency: %d\n", *concurrency)
	fmt.Printf("  repeats:     %d\n\n", *repeats)

	httpC := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpC.Get(*server + "/healthz")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach daemon: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "daemon unhealthy: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	c := client.New(*server)
	if *apiKey != "" {
		c.APIKey = *apiKey
	} else {
		c.APIKey = os.Getenv("FLEETDECK_API_KEY")
	}

	ids, err := seedFleet(c, *fleet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed fleet: %v\n", err)
		os.Exit(1)
	}
	if !*keep {
		defer teardownFleet(c, ids)
	}

	run := func(name string, fn benchOp) {
		if *op == "matrix" {
			fmt.Printf("\n=== Operation: %s ===\n", name)
		}
		runs := make([]runSummary, 0, *repeats)
		for i := 1; i <= *repeats; i++ {
			if *repeats > 1 {
				fmt.Printf("\n-- Run %d/%d --\n", i, *repeats)
			}
			result := benchRun(c, ids, *ops, *concurrency, fn)
			runs = append(runs, printStats(result))
			if i < *repeats && *repeatPause > 0 {
				time.Sleep(*repeatPause)
			}
		}
		if *repeats > 1 {
			fmt.Printf("\n=== Repeat Summary: %s ===\n", name)
			printRunAggregate(runs)
		}
	}

	switch *op {
	case "seats":
		run("seats", opSeats)
	case "user":
		run("user", opUser)
	case "mixed":
		run("mixed", opMixed)
	case "matrix":
		run("seats", opSeats)
		run("user", opUser)
		run("mixed", opMixed)
	default:
		fmt.Fprintf(os.Stderr, "invalid -op %q (expected seats, user, mixed, matrix)\n", *op)
		os.Exit(2)
	}
}

// benchOp performs one operation against one account. seq is the global
// operation index, for ops that vary their behavior across calls.
type benchOp func(c *client.Client, id string, seq int64) error

func opSeats(c *client.Client, id string, seq int64) error {
	res, err := c.UpdateSeats(id, 19, 1)
	if err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("seat update unsuccessful after %d attempts", len(res.Attempts))
	}
	return nil
}

func opUser(c *client.Client, id string, seq int64) error {
	_, err := c.GetUser(id)
	return err
}

func opMixed(c *client.Client, id string, seq int64) error {
	if seq%2 == 0 {
		return opSeats(c, id, seq)
	}
	return opUser(c, id, seq)
}

func seedFleet(c *client.Client, n int) ([]string, error) {
	ids := make([]string, 0, n)
	stamp := time.Now().UnixNano()
	for i := 0; i < n; i++ {
		acct, err := c.CreateAccount(client.CreateAccountParams{
			Email:       fmt.Sprintf("bench-%d-%d@bench.invalid", stamp, i),
			AccessToken: "bench-token",
			Note:        "benchmark account",
		})
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", i, err)
		}
		ids = append(ids, acct.ID)
	}
	fmt.Printf("  seeded %d accounts\n\n", n)
	return ids, nil
}

func teardownFleet(c *client.Client, ids []string) {
	var failed int
	for _, id := range ids {
		if err := c.DeleteAccount(id, false); err != nil {
			failed++
		}
	}
	if failed > 0 {
		fmt.Fprintf(os.Stderr, "teardown: %d of %d accounts not removed\n", failed, len(ids))
	}
}

func benchRun(c *client.Client, ids []string, total, concurrency int, fn benchOp) benchResult {
	lats := make([]time.Duration, total)
	var idx atomic.Int64
	var seq atomic.Int64
	var wg sync.WaitGroup

	perWorker := total / concurrency
	remainder := total % concurrency

	start := time.Now()

	for i := range concurrency {
		n := perWorker
		if i < remainder {
			n++
		}
		wg.Add(1)
		go func(count int) {
			defer wg.Done()
			for range count {
				s := seq.Add(1) - 1
				id := ids[int(s)%len(ids)]
				opStart := time.Now()
				if err := fn(c, id, s); err != nil {
					fmt.Fprintf(os.Stderr, "op error: %v\n", err)
					continue
				}
				pos := idx.Add(1) - 1
				if pos >= int64(total) {
					break
				}
				lats[pos] = time.Since(opStart)
			}
		}(n)
	}

	wg.Wait()
	elapsed := time.Since(start)

	actual := int(idx.Load())
	fmt.Printf("  completed: %d/%d in %s\n", actual, total, elapsed.Round(time.Millisecond))
	return benchResult{lats: lats[:actual], elapsed: elapsed}
}

func summarize(r benchResult) runSummary {
	if len(r.lats) == 0 {
		return runSummary{}
	}
	slices.Sort(r.lats)

	n := len(r.lats)
	opsPerSec := float64(n) / r.elapsed.Seconds()

	var sum time.Duration
	for _, l := range r.lats {
		sum += l
	}
	avg := sum / time.Duration(n)

	return runSummary{
		opsPerSec: opsPerSec,
		avg:       avg,
		p50:       r.lats[n*50/100],
		p90:       r.lats[n*90/100],
		p99:       r.lats[n*99/100],
		min:       r.lats[0],
		max:       r.lats[n-1],
		completed: n,
	}
}

func printStats(r benchResult) runSummary {
	if len(r.lats) == 0 {
		fmt.Println("  no successful operations")
		return runSummary{}
	}

	s := summarize(r)
	fmt.Printf("  ops/sec: %.1f\n", s.opsPerSec)
	fmt.Printf("  avg:     %s\n", s.avg.Round(time.Microsecond))
	fmt.Printf("  p50:     %s\n", s.p50.Round(time.Microsecond))
	fmt.Printf("  p90:     %s\n", s.p90.Round(time.Microsecond))
	fmt.Printf("  p99:     %s\n", s.p99.Round(time.Microsecond))
	fmt.Printf("  min:     %s\n", s.min.Round(time.Microsecond))
	fmt.Printf("  max:     %s\n", s.max.Round(time.Microsecond))
	return s
}

func printRunAggregate(runs []runSummary) {
	if len(runs) == 0 {
		fmt.Println("  no runs")
		return
	}
	opsVals := make([]float64, 0, len(runs))
	p99Vals := make([]time.Duration, 0, len(runs))
	for _, r := range runs {
		if r.completed == 0 {
			continue
		}
		opsVals = append(opsVals, r.opsPerSec)
		p99Vals = append(p99Vals, r.p99)
	}
	if len(opsVals) == 0 {
		fmt.Println("  no successful runs")
		return
	}
	slices.Sort(opsVals)
	slices.Sort(p99Vals)
	medianOps := opsVals[len(opsVals)/2]
	p90Ops := opsVals[percentileIndex(len(opsVals), 90)]
	medianP99 := p99Vals[len(p99Vals)/2]
	p90P99 := p99Vals[percentileIndex(len(p99Vals), 90)]
	fmt.Printf("  ops/sec median: %.1f\n", medianOps)
	fmt.Printf("  ops/sec p90:    %.1f\n", p90Ops)
	fmt.Printf("  p99 median:     %s\n", medianP99.Round(time.Microsecond))
	fmt.Printf("  p99 p90:        %s\n", p90P99.Round(time.Microsecond))
}

func percentileIndex(n, p int) int {
	if n <= 1 {
		return 0
	}
	if p <= 0 {
		return 0
	}
	if p >= 100 {
		return n - 1
	}
	rank := int(math.Ceil(float64(p) / 100.0 * float64(n)))
	idx := rank - 1
	if idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
