package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
	assert.Equal(t, "payout_transfer_retry", string(JobTypePayoutTransferRetry))
}

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job at max retries", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Processing job", &Job{Status: JobStatusProcessing, RetryCount: 0, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 0, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("transfer failed")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "transfer failed", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)
	assert.Equal(t, time.Minute, job.RetryDelay())

	job.MarkAsFailed("again")
	assert.Equal(t, 2*time.Minute, job.RetryDelay())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestPayoutRetryJobPayload(t *testing.T) {
	payload := PayoutRetryJobPayload{TransactionID: "txn-1", Source: "sweep"}

	data := payload.ToMap()
	assert.Equal(t, map[string]interface{}{"transaction_id": "txn-1", "source": "sweep"}, data)

	decoded, err := PayoutRetryJobPayloadFromMap(data)
	require.NoError(t, err)
	assert.Equal(t, payload, *decoded)

	assert.NotContains(t, PayoutRetryJobPayload{TransactionID: "txn-2"}.ToMap(), "source")

	_, err = PayoutRetryJobPayloadFromMap(map[string]interface{}{"source": "sweep"})
	assert.Error(t, err)
}
