package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Flagged reports whether a decision counts as a fraud prediction.
func Flagged(d domain.DecisionType) bool {
	return d == domain.DecisionRejected || d == domain.DecisionRequiresReview
}

// Results is the confusion matrix of a replay.
type Results struct {
	mu sync.Mutex

	TruePositives  int
	FalsePositives int
	TrueNegatives  int
	FalseNegatives int

	Decisions map[domain.DecisionType]int
	Errors    int
	Latency   time.Duration
}

// NewResults returns an empty matrix.
func NewResults() *Results {
	return &Results{Decisions: make(map[domain.DecisionType]int)}
}

// Record adds one scored row.
func (r *Results) Record(fraud bool, d domain.DecisionType, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Decisions[d]++
	r.Latency += latency

	switch predicted := Flagged(d); {
	case predicted && fraud:
		r.TruePositives++
	case predicted:
		r.FalsePositives++
	case fraud:
		r.FalseNegatives++
	default:
		r.TrueNegatives++
	}
}

// RecordError counts a request that produced no decision.
func (r *Results) RecordError() {
	r.mu.Lock()
	r.Errors++
	r.mu.Unlock()
}

// Scored is the number of rows with a decision.
func (r *Results) Scored() int {
	return r.TruePositives + r.FalsePositives + r.TrueNegatives + r.FalseNegatives
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func (r *Results) Precision() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalsePositives)
}

func (r *Results) Recall() float64 {
	return ratio(r.TruePositives, r.TruePositives+r.FalseNegatives)
}

func (r *Results) F1() float64 {
	p, rc := r.Precision(), r.Recall()
	if p+rc == 0 {
		return 0
	}
	return 2 * p * rc / (p + rc)
}

func (r *Results) Accuracy() float64 {
	return ratio(r.TruePositives+r.TrueNegatives, r.Scored())
}

// Print writes the report.
func (r *Results) Print(w io.Writer, elapsed time.Duration) {
	fmt.Fprintln(w, "\nRESULTS")
	fmt.Fprintf(w, "  Scored:    %d\n", r.Scored())
	fmt.Fprintf(w, "  Errors:    %d\n", r.Errors)
	for _, d := range []domain.DecisionType{domain.DecisionApproved, domain.DecisionRequiresReview, domain.DecisionRejected} {
		fmt.Fprintf(w, "  %-16s %d\n", d+":", r.Decisions[d])
	}

	fmt.Fprintln(w, "\nCONFUSION MATRIX (flagged = REJECTED or REQUIRES_REVIEW)")
	fmt.Fprintln(w, "                 flagged   passed")
	fmt.Fprintf(w, "  fraud         %8d %8d\n", r.TruePositives, r.FalseNegatives)
	fmt.Fprintf(w, "  legitimate    %8d %8d\n", r.FalsePositives, r.TrueNegatives)

	fmt.Fprintln(w, "\nDETECTION")
	fmt.Fprintf(w, "  Precision: %.4f\n", r.Precision())
	fmt.Fprintf(w, "  Recall:    %.4f\n", r.Recall())
	fmt.Fprintf(w, "  F1:        %.4f\n", r.F1())
	fmt.Fprintf(w, "  Accuracy:  %.4f\n", r.Accuracy())

	fmt.Fprintln(w, "\nPERFORMANCE")
	fmt.Fprintf(w, "  Duration:   %v\n", elapsed.Round(time.Millisecond))
	if n := r.Scored(); n > 0 {
		fmt.Fprintf(w, "  Avg latency: %v\n", (r.Latency / time.Duration(n)).Round(time.Microsecond))
		fmt.Fprintf(w, "  Throughput:  %.2f tx/s\n", float64(n)/elapsed.Seconds())
	}
}
