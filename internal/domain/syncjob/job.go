package syncjob

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lane is a named, independently processed category of queued work
type Lane string

const (
	LaneBankSync       Lane = "bank-sync"
	LaneReconciliation Lane = "reconciliation"
	LaneDominioSync    Lane = "dominio-sync"
	LaneReports        Lane = "reports"
	LaneNotifications  Lane = "notifications"
)

// Lanes lists every lane a dispatcher must poll
func Lanes() []Lane {
	return []Lane{LaneBankSync, LaneReconciliation, LaneDominioSync, LaneReports, LaneNotifications}
}

// Status defines the lifecycle states of a queued job. Transient failures
// return a job to StatusPending with a future retry time; only terminal
// success or exhausted/non-retryable failure leaves this set.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusRunning         Status = "RUNNING"
	StatusSucceeded       Status = "SUCCEEDED"
	StatusFailedPermanent Status = "FAILED_PERMANENT"
)

// Job is a durable unit of queued work. Jobs in the same partition (same
// tenant and bank account) execute strictly in enqueue order; jobs across
// partitions carry no ordering guarantee.
type Job struct {
	ID             uuid.UUID       `json:"id"`
	Lane           Lane            `json:"lane"`
	TenantID       uuid.UUID       `json:"tenant_id"`
	PartitionKey   string          `json:"partition_key"`
	Payload        json.RawMessage `json:"payload"`
	Status         Status          `json:"status"`
	Attempts       int             `json:"attempts"`
	NextRetryAt    time.Time       `json:"next_retry_at"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	Seq            int64           `json:"seq"` // Enqueue order within a partition
	EnqueuedAt     time.Time       `json:"enqueued_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PartitionKey builds the FIFO partition identifier for a tenant and bank
// account. Lanes whose work is not account-bound pass an empty accountRef
// and serialize per tenant only.
func PartitionKey(tenantID uuid.UUID, accountRef string) string {
	if accountRef == "" {
		return tenantID.String()
	}
	return tenantID.String() + ":" + accountRef
}

// NewJob builds a pending job with the payload marshaled to JSON
func NewJob(lane Lane, tenantID uuid.UUID, accountRef string, payload interface{}) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}

	now := time.Now().UTC()
	return &Job{
		ID:           uuid.New(),
		Lane:         lane,
		TenantID:     tenantID,
		PartitionKey: PartitionKey(tenantID, accountRef),
		Payload:      body,
		Status:       StatusPending,
		Attempts:     0,
		NextRetryAt:  now,
		EnqueuedAt:   now,
		UpdatedAt:    now,
	}, nil
}

// DecodePayload unmarshals the job payload into dst
func (j *Job) DecodePayload(dst interface{}) error {
	if err := json.Unmarshal(j.Payload, dst); err != nil {
		return fmt.Errorf("failed to decode payload for job %s: %w", j.ID, err)
	}
	return nil
}
