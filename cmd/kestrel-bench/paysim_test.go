package main

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `step,type,amount,nameOrig,oldbalanceOrg,newbalanceOrig,nameDest,oldbalanceDest,newbalanceDest,isFraud,isFlaggedFraud
1,PAYMENT,9839.64,C1231006815,170136.0,160296.36,M1979787155,0.0,0.0,0,0
1,TRANSFER,181.0,C1305486145,181.0,0.0,C553264065,0.0,0.0,1,0
1,CASH_OUT,not-a-number,C840083671,181.0,0.0,C38997010,21182.0,0.0,1,0
2,CASH_OUT,229133.94,C905080434,15325.0,0.0,C476402209,5083.0,51513.44,0,0
`

func TestReadPaySim(t *testing.T) {
	t.Run("AllRows", func(t *testing.T) {
		rows, skipped, err := ReadPaySim(strings.NewReader(sampleCSV), Filter{SampleRate: 1})
		require.NoError(t, err)
		assert.Equal(t, 1, skipped)
		require.Len(t, rows, 3)

		assert.Equal(t, "C1231006815", rows[0].NameOrig)
		assert.Equal(t, "9839.64", rows[0].Amount.String())
		assert.False(t, rows[0].IsFraud)
		assert.True(t, rows[1].IsFraud)
		assert.True(t, rows[1].Drains())
		assert.False(t, rows[0].Drains())
	})

	t.Run("FraudOnly", func(t *testing.T) {
		rows, _, err := ReadPaySim(strings.NewReader(sampleCSV), Filter{FraudOnly: true})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, "C1305486145", rows[0].NameOrig)
	})

	t.Run("Limit", func(t *testing.T) {
		rows, _, err := ReadPaySim(strings.NewReader(sampleCSV), Filter{Limit: 2, SampleRate: 1})
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, _, err := ReadPaySim(strings.NewReader("step,type\n1,PAYMENT\n"), Filter{})
		assert.ErrorContains(t, err, "amount")
	})
}

func TestRowRequest(t *testing.T) {
	rows, _, err := ReadPaySim(strings.NewReader(sampleCSV), Filter{SampleRate: 1})
	require.NoError(t, err)
	epoch := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	req := rows[2].Request(epoch, 7)
	assert.Equal(t, "paysim-7", req.ID)
	assert.Equal(t, domain.TxWithdrawal, req.Type)
	assert.Equal(t, "C905080434", req.AccountID)
	require.NotNil(t, req.Timestamp)
	assert.Equal(t, epoch.Add(2*time.Hour), *req.Timestamp)
	assert.NoError(t, req.Validate())
}

func TestResults(t *testing.T) {
	r := NewResults()
	r.Record(true, domain.DecisionRejected, time.Millisecond)
	r.Record(true, domain.DecisionRequiresReview, time.Millisecond)
	r.Record(true, domain.DecisionApproved, time.Millisecond)
	r.Record(false, domain.DecisionRejected, time.Millisecond)
	r.Record(false, domain.DecisionApproved, time.Millisecond)
	r.RecordError()

	assert.Equal(t, 2, r.TruePositives)
	assert.Equal(t, 1, r.FalseNegatives)
	assert.Equal(t, 1, r.FalsePositives)
	assert.Equal(t, 1, r.TrueNegatives)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 5, r.Scored())

	assert.InDelta(t, 2.0/3, r.Precision(), 1e-9)
	assert.InDelta(t, 2.0/3, r.Recall(), 1e-9)
	assert.InDelta(t, 2.0/3, r.F1(), 1e-9)
	assert.InDelta(t, 0.6, r.Accuracy(), 1e-9)

	var out strings.Builder
	r.Print(&out, time.Second)
	assert.Contains(t, out.String(), "REQUIRES_REVIEW:")
}
