package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/shopspring/decimal"
)

// Row is one labelled PaySim transaction.
type Row struct {
	Step           int
	Type           string
	Amount         decimal.Decimal
	NameOrig       string
	OldBalanceOrig decimal.Decimal
	NewBalanceOrig decimal.Decimal
	NameDest       string
	IsFraud        bool
}

// Filter selects which rows are replayed.
type Filter struct {
	Limit      int
	FraudOnly  bool
	SampleRate float64 // fraction of legitimate rows kept
}

var requiredColumns = []string{"step", "type", "amount", "nameorig", "oldbalanceorg", "newbalanceorig", "namedest", "isfraud"}

// ReadPaySim parses a PaySim CSV export. Malformed rows are skipped and
// counted.
func ReadPaySim(r io.Reader, f Filter) (rows []Row, skipped int, err error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := col[name]; !ok {
			return nil, 0, fmt.Errorf("missing column %q", name)
		}
	}

	legit := 0
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		row, err := parseRow(record, col)
		if err != nil {
			skipped++
			continue
		}

		if !row.IsFraud {
			if f.FraudOnly {
				continue
			}
			legit++
			if f.SampleRate < 1 && float64(legit%100)/100 >= f.SampleRate {
				continue
			}
		}

		rows = append(rows, row)
		if f.Limit > 0 && len(rows) >= f.Limit {
			break
		}
	}
	return rows, skipped, nil
}

func parseRow(record []string, col map[string]int) (Row, error) {
	field := func(name string) string { return strings.TrimSpace(record[col[name]]) }

	step, err := strconv.Atoi(field("step"))
	if err != nil {
		return Row{}, fmt.Errorf("step: %w", err)
	}
	amount, err := decimal.NewFromString(field("amount"))
	if err != nil {
		return Row{}, fmt.Errorf("amount: %w", err)
	}
	oldBal, err := decimal.NewFromString(field("oldbalanceorg"))
	if err != nil {
		return Row{}, fmt.Errorf("oldbalanceOrg: %w", err)
	}
	newBal, err := decimal.NewFromString(field("newbalanceorig"))
	if err != nil {
		return Row{}, fmt.Errorf("newbalanceOrig: %w", err)
	}

	return Row{
		Step:           step,
		Type:           field("type"),
		Amount:         amount,
		NameOrig:       field("nameorig"),
		OldBalanceOrig: oldBal,
		NewBalanceOrig: newBal,
		NameDest:       field("namedest"),
		IsFraud:        field("isfraud") == "1",
	}, nil
}

// paysimTypes maps PaySim transaction types onto Kestrel's.
var paysimTypes = map[string]domain.TransactionType{
	"PAYMENT":  domain.TxPayment,
	"TRANSFER": domain.TxTransfer,
	"CASH_OUT": domain.TxWithdrawal,
	"CASH_IN":  domain.TxDeposit,
	"DEBIT":    domain.TxATMWithdrawal,
}

// Request converts a row into a Kestrel transaction request. PaySim steps
// are hours since the simulation start.
func (r Row) Request(start time.Time, index int) domain.TransactionRequest {
	txType, ok := paysimTypes[strings.ToUpper(r.Type)]
	if !ok {
		txType = domain.TxPayment
	}
	ts := start.Add(time.Duration(r.Step) * time.Hour)
	return domain.TransactionRequest{
		ID:          fmt.Sprintf("paysim-%d", index),
		AccountID:   r.NameOrig,
		Type:        txType,
		Amount:      r.Amount,
		Currency:    "USD",
		Timestamp:   &ts,
		MerchantID:  r.NameDest,
		Description: "PaySim " + r.Type,
	}
}

// Drains reports whether the row empties the originating account.
func (r Row) Drains() bool {
	return r.OldBalanceOrig.IsPositive() && r.NewBalanceOrig.IsZero()
}
