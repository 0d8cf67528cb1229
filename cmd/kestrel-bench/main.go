// Command kestrel-bench replays a labelled PaySim CSV against a running
// Kestrel and reports how its decisions line up with the fraud labels.
//
// Usage:
//
//	kestrel-bench -csv paysim.csv -url http://localhost:8080
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/fraud"
	"golang.org/x/sync/errgroup"
)

func main() {
	csvPath := flag.String("csv", "", "path to a PaySim CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "maximum rows to replay (0 = all)")
	workers := flag.Int("workers", 10, "concurrent requests")
	fraudOnly := flag.Bool("fraud-only", false, "replay fraud rows only")
	sample := flag.Float64("sample", 1.0, "fraction of legitimate rows to keep (0.0-1.0)")
	start := flag.String("start", "2024-01-01T00:00:00Z", "timestamp of PaySim step 0 (RFC 3339)")
	verbose := flag.Bool("verbose", false, "print every decision")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: kestrel-bench -csv paysim.csv [-url http://localhost:8080]")
		flag.PrintDefaults()
		os.Exit(2)
	}
	epoch, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		fatalf("invalid -start: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 10 * time.Second}
	if err := checkReady(ctx, client, *baseURL); err != nil {
		fatalf("kestrel not ready at %s: %v", *baseURL, err)
	}

	file, err := os.Open(*csvPath)
	if err != nil {
		fatalf("%v", err)
	}
	rows, skipped, err := ReadPaySim(file, Filter{Limit: *limit, FraudOnly: *fraudOnly, SampleRate: *sample})
	file.Close()
	if err != nil {
		fatalf("read %s: %v", *csvPath, err)
	}
	fmt.Printf("loaded %d rows (%d malformed skipped)\n", len(rows), skipped)

	results := NewResults()
	began := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*workers)
	for i, row := range rows {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			t0 := time.Now()
			report, err := submit(gctx, client, *baseURL, row.Request(epoch, i))
			if err != nil {
				results.RecordError()
				if *verbose {
					fmt.Printf("ERROR %s: %v\n", row.NameOrig, err)
				}
				return nil
			}
			d := report.Result.Decision.Type
			results.Record(row.IsFraud, d, time.Since(t0))
			if *verbose {
				fmt.Printf("%-12s %-9s %14s fraud=%-5v drain=%-5v -> %-15s %s\n",
					row.NameOrig, row.Type, row.Amount.StringFixed(2), row.IsFraud, row.Drains(),
					d, report.Result.RiskScore.StringFixed(2))
			}
			return nil
		})
	}
	_ = g.Wait()

	results.Print(os.Stdout, time.Since(began))
}

func checkReady(ctx context.Context, client *http.Client, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/ready", nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func submit(ctx context.Context, client *http.Client, baseURL string, body any) (*fraud.Report, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/transactions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var report fraud.Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, err
	}
	return &report, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "kestrel-bench: "+format+"\n", args...)
	os.Exit(1)
}
