// Benchmark tool for testing Kestrel against synthetic journal entry data.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080 -runs 500
//
// This tool:
//   1. Generates synthetic journal entry datasets, seeding a known fraction
//      with anomalies (late postings, round amounts, manual references)
//   2. Sends each dataset to Kestrel's POST /analyze endpoint
//   3. Compares Kestrel's verdict (ALRT/NALT) with whether anomalies were seeded
//   4. Calculates precision, recall, F1-score, and confusion matrix
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Dataset is one generated journal entry population with its ground truth.
type Dataset struct {
	Index     int
	Seeded    bool // anomalies were injected
	Request   RunRequest
	Anomalies int
}

// RunRequest is the Kestrel API request format.
type RunRequest struct {
	Kind         string        `json:"kind"`
	EngagementID string        `json:"engagementId,omitempty"`
	Parameters   JournalParams `json:"parameters"`
}

// JournalParams mirrors the JE analyzer parameter shape.
type JournalParams struct {
	PeriodEnd            string         `json:"periodEnd"`
	LatePostingDays      int            `json:"latePostingDays"`
	RoundAmountThreshold float64        `json:"roundAmountThreshold"`
	WeekendFlag          bool           `json:"weekendFlag"`
	Entries              []JournalEntry `json:"entries"`
}

// JournalEntry is one journal line.
type JournalEntry struct {
	ID          string  `json:"id"`
	PostedAt    string  `json:"postedAt"`
	Amount      float64 `json:"amount"`
	Account     string  `json:"account"`
	Description string  `json:"description,omitempty"`
}

// RunResponse is the Kestrel API response format.
type RunResponse struct {
	RunID   string   `json:"runId"`
	Status  string   `json:"status"` // "ALRT" or "NALT"
	Score   float64  `json:"score"`
	Reasons []string `json:"reasons"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Seeded dataset flagged ALRT
	FalsePositives int64 // Clean dataset flagged ALRT
	TrueNegatives  int64 // Clean dataset passed NALT
	FalseNegatives int64 // Seeded dataset passed NALT (missed!)

	TotalProcessed int64
	TotalSeeded    int64
	TotalClean     int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	runs := flag.Int("runs", 500, "Number of datasets to generate")
	entries := flag.Int("entries", 200, "Journal entries per dataset")
	anomalyRate := flag.Float64("anomaly-rate", 0.2, "Fraction of datasets seeded with anomalies (0.0-1.0)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for dataset generation")
	verbose := flag.Bool("verbose", false, "Print each dataset result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       KESTREL BENCHMARK - Journal Entry Anomaly Detection     ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL:  %s\n", *baseURL)
	fmt.Printf("Tenant ID:    %s\n", *tenantID)
	fmt.Printf("Datasets:     %d\n", *runs)
	fmt.Printf("Entries:      %d per dataset\n", *entries)
	fmt.Printf("Anomaly Rate: %.2f\n", *anomalyRate)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	// Check Kestrel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  cd kestrel && go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	// Generate datasets
	fmt.Printf("\nGenerating %d synthetic datasets...\n", *runs)
	datasets := generateDatasets(*runs, *entries, *anomalyRate, *seed)

	seededCount := 0
	for _, d := range datasets {
		if d.Seeded {
			seededCount++
		}
	}
	fmt.Printf("✓ Generated %d datasets\n", len(datasets))
	fmt.Printf("  - Seeded: %d (%.2f%%)\n", seededCount, 100*float64(seededCount)/float64(len(datasets)))
	fmt.Printf("  - Clean:  %d (%.2f%%)\n", len(datasets)-seededCount, 100*float64(len(datasets)-seededCount)/float64(len(datasets)))

	// Run benchmark
	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(datasets, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	// Print results
	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generateDatasets builds journal entry populations around a January period
// end. Clean entries post inside the period with irregular amounts; seeded
// datasets inject entries that accumulate late-posting, round-amount, and
// manual-reference flags so the JE analyzer reports them as exceptions.
func generateDatasets(runs, entriesPer int, anomalyRate float64, seed int64) []Dataset {
	rng := rand.New(rand.NewSource(seed))
	periodEnd := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	datasets := make([]Dataset, 0, runs)
	for i := 0; i < runs; i++ {
		seeded := rng.Float64() < anomalyRate

		entries := make([]JournalEntry, 0, entriesPer)
		for j := 0; j < entriesPer; j++ {
			// Post within the period, cents keep amounts off round multiples
			postedAt := periodEnd.AddDate(0, 0, -rng.Intn(28)-1)
			amount := float64(rng.Intn(90000)+100) + float64(rng.Intn(99)+1)/100

			entries = append(entries, JournalEntry{
				ID:          fmt.Sprintf("je-%d-%d", i, j),
				PostedAt:    postedAt.Format(time.RFC3339),
				Amount:      amount,
				Account:     fmt.Sprintf("%d", 4000+rng.Intn(20)),
				Description: fmt.Sprintf("INV-%06d", rng.Intn(1000000)),
			})
		}

		anomalies := 0
		if seeded {
			// Each injected entry scores late + round + manual (75), well
			// past the exception floor; 12+ exceptions trips the builtin
			// exception-volume fail band.
			anomalies = 12 + rng.Intn(8)
			for j := 0; j < anomalies; j++ {
				postedAt := periodEnd.AddDate(0, 0, 10+rng.Intn(10))
				entries = append(entries, JournalEntry{
					ID:          fmt.Sprintf("je-%d-anom-%d", i, j),
					PostedAt:    postedAt.Format(time.RFC3339),
					Amount:      float64(rng.Intn(50)+1) * 1000,
					Account:     fmt.Sprintf("%d", 4000+rng.Intn(20)),
					Description: "manual adjustment",
				})
			}
		}

		datasets = append(datasets, Dataset{
			Index:     i,
			Seeded:    seeded,
			Anomalies: anomalies,
			Request: RunRequest{
				Kind:         "JE",
				EngagementID: fmt.Sprintf("bench-%d", i%10),
				Parameters: JournalParams{
					PeriodEnd:            periodEnd.Format(time.RFC3339),
					LatePostingDays:      3,
					RoundAmountThreshold: 1000,
					WeekendFlag:          false,
					Entries:              entries,
				},
			},
		})
	}

	return datasets
}

func runBenchmark(datasets []Dataset, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	// Create work channel
	work := make(chan Dataset, 100)
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 30 * time.Second}

			for d := range work {
				start := time.Now()
				result, err := analyzeDataset(client, baseURL, tenantID, d)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: dataset %d -> %v\n", d.Index, err)
					}
					continue
				}

				// Track ground truth
				if d.Seeded {
					atomic.AddInt64(&metrics.TotalSeeded, 1)
				} else {
					atomic.AddInt64(&metrics.TotalClean, 1)
				}

				// Calculate confusion matrix
				predicted := result.Status == "ALRT"
				actual := d.Seeded

				if predicted && actual {
					atomic.AddInt64(&metrics.TruePositives, 1)
				} else if predicted && !actual {
					atomic.AddInt64(&metrics.FalsePositives, 1)
				} else if !predicted && !actual {
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				} else { // !predicted && actual
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					status := "✓"
					if (predicted && !actual) || (!predicted && actual) {
						status = "✗"
					}
					fmt.Printf("%s dataset %-5d | Entries: %-5d | Seeded: %-5v (%2d) | Kestrel: %-4s (%.2f)\n",
						status,
						d.Index,
						len(d.Request.Parameters.Entries),
						d.Seeded,
						d.Anomalies,
						result.Status,
						result.Score,
					)
				}
			}
		}()
	}

	// Send work
	for _, d := range datasets {
		work <- d
	}
	close(work)

	// Wait for completion
	wg.Wait()

	return metrics
}

func analyzeDataset(client *http.Client, baseURL, tenantID string, d Dataset) (*RunResponse, error) {
	body, err := json.Marshal(d.Request)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result RunResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Seeded:     %d\n", m.TotalSeeded)
	fmt.Printf("   Total Clean:      %d\n", m.TotalClean)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📈 CONFUSION MATRIX\n")
	fmt.Println("                        Predicted")
	fmt.Println("                    ALRT        NALT")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Actual  S  │ %8d │ %8d │  (TP, FN)\n", m.TruePositives, m.FalseNegatives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("           C  │ %8d │ %8d │  (FP, TN)\n", m.FalsePositives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	accuracy := float64(0)
	total := m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
	if total > 0 {
		accuracy = float64(m.TruePositives+m.TrueNegatives) / float64(total)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were seeded datasets)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of seeded datasets, how many did we catch)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)
	fmt.Printf("   Accuracy:   %.4f  (overall correct predictions)\n", accuracy)

	// Detection rate analysis
	fmt.Printf("\n🔍 DETECTION ANALYSIS\n")
	if m.TotalSeeded > 0 {
		detectionRate := float64(m.TruePositives) / float64(m.TotalSeeded) * 100
		missRate := float64(m.FalseNegatives) / float64(m.TotalSeeded) * 100
		fmt.Printf("   Anomalies Detected: %d / %d (%.2f%%)\n", m.TruePositives, m.TotalSeeded, detectionRate)
		fmt.Printf("   Anomalies Missed:   %d / %d (%.2f%%) ⚠️\n", m.FalseNegatives, m.TotalSeeded, missRate)
	}
	if m.TotalClean > 0 {
		falseAlarmRate := float64(m.FalsePositives) / float64(m.TotalClean) * 100
		fmt.Printf("   False Alarms:       %d / %d (%.2f%%)\n", m.FalsePositives, m.TotalClean, falseAlarmRate)
	}

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f runs/sec\n", rps)
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most seeded anomalies")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some seeded anomalies")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant anomalies being missed")
	} else {
		fmt.Println("   ❌ Poor recall - most seeded anomalies are being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	fmt.Println()
}
