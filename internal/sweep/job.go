// Package sweep schedules and runs purges of children left behind by incomplete vehicle deletes.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// ErrInvalidJob is returned for messages that do not decode to a usable job.
var ErrInvalidJob = errors.New("invalid sweep job")

// Job asks for the children of a deleted vehicle to be purged.
type Job struct {
	VehicleID   string    `json:"vehicleId"`
	OwnerID     string    `json:"ownerId"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requestedAt"`
}

// NewJob returns the first attempt of a purge for vehicleID.
func NewJob(ownerID, vehicleID string, now time.Time) Job {
	return Job{VehicleID: vehicleID, OwnerID: ownerID, Attempt: 1, RequestedAt: now.UTC()}
}

// ToJSON encodes the job.
func (j Job) ToJSON() ([]byte, error) {
	return json.Marshal(j)
}

// JobFromJSON decodes and validates a job.
func JobFromJSON(data []byte) (Job, error) {
	var msg struct {
		Job
		LegacyOwnerID string `json:"userId"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return Job{}, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	j := msg.Job
	// Jobs queued before the field rename carry userId.
	if j.OwnerID == "" {
		j.OwnerID = msg.LegacyOwnerID
	}
	if j.VehicleID == "" {
		return Job{}, fmt.Errorf("%w: missing vehicle id", ErrInvalidJob)
	}
	if j.Attempt < 1 {
		j.Attempt = 1
	}
	return j, nil
}

// Publisher schedules sweep jobs.
type Publisher interface {
	PublishSweep(ctx context.Context, job Job) error
}

// NoopPublisher drops jobs. It is used when no broker is configured.
type NoopPublisher struct {
	Logger *slog.Logger
}

// PublishSweep logs the dropped job.
func (p NoopPublisher) PublishSweep(ctx context.Context, job Job) error {
	if p.Logger != nil {
		p.Logger.WarnContext(ctx, "sweep_job_not_published",
			"vehicle_id", job.VehicleID,
			"reason", "no broker configured",
		)
	}
	return nil
}

// NewConsumerTag creates a stable-ish consumer tag for the broker.
func NewConsumerTag() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "sweeper"
	}
	return fmt.Sprintf("%s-%d-%d", host, os.Getpid(), time.Now().UnixNano())
}
