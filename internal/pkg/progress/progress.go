package progress

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyFormat is the Redis hash key for one job's live progress.
	KeyFormat = "product-import:progress:%s"

	// TTL bounds the life of a snapshot. Every publish refreshes it, so a
	// stale key disappears on its own within the hour.
	TTL = time.Hour
)

// Snapshot is the ephemeral progress record for one import job. It is
// advisory only: the durable job row stays the source of truth and this
// overlay just adds intra-batch freshness. Nil numeric fields and empty
// strings mean "not written", so a publish overwrites only the fields it
// carries while earlier fields persist in the hash.
type Snapshot struct {
	Status    string
	Phase     string
	Message   string
	Progress  *int
	Processed *int
	Total     *int
}

// Publisher writes job progress snapshots to Redis. It is a pure
// side-effecting sink: publishes never read-modify-write, and callers log
// publish failures instead of letting them abort the import.
type Publisher struct {
	client *redis.Client
}

// NewPublisher creates a progress publisher on the given Redis client.
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func key(jobID string) string {
	return fmt.Sprintf(KeyFormat, jobID)
}

// Publish overwrites the snapshot fields present in snap and refreshes the
// key's expiry.
func (p *Publisher) Publish(ctx context.Context, jobID string, snap Snapshot) error {
	fields := make(map[string]interface{}, 6)
	if snap.Status != "" {
		fields["status"] = snap.Status
	}
	if snap.Phase != "" {
		fields["phase"] = snap.Phase
	}
	if snap.Message != "" {
		fields["message"] = snap.Message
	}
	if snap.Progress != nil {
		fields["progress"] = strconv.Itoa(*snap.Progress)
	}
	if snap.Processed != nil {
		fields["processed"] = strconv.Itoa(*snap.Processed)
	}
	if snap.Total != nil {
		fields["total"] = strconv.Itoa(*snap.Total)
	}
	if len(fields) == 0 {
		return nil
	}

	k := key(jobID)
	pipe := p.client.Pipeline()
	pipe.HSet(ctx, k, fields)
	pipe.Expire(ctx, k, TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish progress for job %s: %w", jobID, err)
	}
	return nil
}

// Clear deletes the snapshot outright.
func (p *Publisher) Clear(ctx context.Context, jobID string) error {
	if err := p.client.Del(ctx, key(jobID)).Err(); err != nil {
		return fmt.Errorf("clear progress for job %s: %w", jobID, err)
	}
	return nil
}

// Read returns the current snapshot. The second return value is false when
// no snapshot exists (never written, cleared, or expired).
func (p *Publisher) Read(ctx context.Context, jobID string) (Snapshot, bool, error) {
	fields, err := p.client.HGetAll(ctx, key(jobID)).Result()
	if err != nil {
		return Snapshot{}, false, fmt.Errorf("read progress for job %s: %w", jobID, err)
	}
	if len(fields) == 0 {
		return Snapshot{}, false, nil
	}

	snap := Snapshot{
		Status:  fields["status"],
		Phase:   fields["phase"],
		Message: fields["message"],
	}
	snap.Progress = parseField(fields, "progress")
	snap.Processed = parseField(fields, "processed")
	snap.Total = parseField(fields, "total")
	return snap, true, nil
}

// parseField coerces a numeric hash field, defaulting to 0 when the stored
// value does not parse. Absent fields stay nil.
func parseField(fields map[string]string, name string) *int {
	raw, ok := fields[name]
	if !ok {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		val = 0
	}
	return &val
}
