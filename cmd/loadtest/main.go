// Command loadtest drives POST /api/v1/ask with a fixed pool of regulatory
// questions and reports throughput, latency percentiles, the answer cache
// hit rate and the mean confidence of the answers returned.
//
// Usage:
//
//	go run ./cmd/loadtest [-url http://localhost:8080] [-concurrency 4] [-duration 30s] [-questions questions.txt]
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var defaultQuestions = []string{
	"What are the requirements for a private pilot licence?",
	"How long is an aerodrome certificate valid?",
	"Who may operate a drone near an airport?",
	"What medical certificate does a commercial pilot need?",
	"What are the duties of an air operator certificate holder?",
	"How are aircraft accidents reported?",
	"What documents must be carried on board an aircraft?",
	"What are the rest requirements for flight crew?",
}

type result struct {
	latency    time.Duration
	status     int
	cached     bool
	confidence float64
	err        error
}

type recorder struct {
	mu      sync.Mutex
	results []result
}

func (r *recorder) add(res result) {
	r.mu.Lock()
	r.results = append(r.results, res)
	r.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the assistant")
	concurrency := flag.Int("concurrency", 4, "number of concurrent askers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	questionsPath := flag.String("questions", "", "file with one question per line")
	apiKey := flag.String("api-key", "", "API key sent as X-API-Key")
	flag.Parse()

	questions := defaultQuestions
	if *questionsPath != "" {
		loaded, err := readQuestions(*questionsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading questions: %v\n", err)
			os.Exit(1)
		}
		questions = loaded
	}

	fmt.Println("=== Regulatory Q&A Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Questions:   %d unique\n\n", len(questions))

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Minute}
	rec := &recorder{}
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < *concurrency; w++ {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				res := ask(ctx, client, *baseURL, *apiKey, questions[i%len(questions)])
				if ctx.Err() != nil {
					return nil
				}
				rec.add(res)
			}
			return nil
		})
	}
	_ = g.Wait()

	if !report(rec.results, *duration) {
		fmt.Println("\nWARNING: no requests completed. Is the assistant running?")
		os.Exit(1)
	}
}

func ask(ctx context.Context, client *http.Client, baseURL, apiKey, question string) result {
	body, _ := json.Marshal(map[string]string{"query": question})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/ask", bytes.NewReader(body))
	if err != nil {
		return result{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return result{latency: latency, err: err}
	}
	defer resp.Body.Close()

	var out struct {
		Confidence float64 `json:"confidence"`
		Cached     bool    `json:"cached"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return result{latency: latency, status: resp.StatusCode, cached: out.Cached, confidence: out.Confidence}
}

func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var questions []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			questions = append(questions, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("%s contains no questions", path)
	}
	return questions, nil
}

func report(results []result, duration time.Duration) bool {
	var (
		ok, failed, cached int
		confidenceSum      float64
		latencies          []time.Duration
		statuses           = map[int]int{}
	)
	for _, r := range results {
		if r.err != nil {
			failed++
			continue
		}
		statuses[r.status]++
		latencies = append(latencies, r.latency)
		if r.status != http.StatusOK {
			failed++
			continue
		}
		ok++
		confidenceSum += r.confidence
		if r.cached {
			cached++
		}
	}

	total := len(results)
	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Answered:        %d\n", ok)
	fmt.Printf("Errors:          %d\n", failed)
	if total == 0 {
		return false
	}
	fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	if ok > 0 {
		fmt.Printf("Cache Hit Rate:  %.1f%%\n", float64(cached)/float64(ok)*100)
		fmt.Printf("Avg Confidence:  %.2f\n", confidenceSum/float64(ok))
	}

	if len(latencies) > 0 {
		slices.Sort(latencies)
		fmt.Println("\n=== Latency ===")
		fmt.Printf("Min:  %s\n", latencies[0])
		fmt.Printf("P50:  %s\n", percentile(latencies, 50))
		fmt.Printf("P95:  %s\n", percentile(latencies, 95))
		fmt.Printf("P99:  %s\n", percentile(latencies, 99))
		fmt.Printf("Max:  %s\n", latencies[len(latencies)-1])
	}

	fmt.Println("\n=== Status Codes ===")
	codes := make([]int, 0, len(statuses))
	for code := range statuses {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Printf("  %d: %d\n", code, statuses[code])
	}
	return true
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := (len(sorted)*p+99)/100 - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
