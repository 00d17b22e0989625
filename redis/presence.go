package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Viewer is one open stream connection watching a session.
type Viewer struct {
	ConnID   string    `json:"conn_id"`
	Role     string    `json:"role"` // visitor, admin
	Operator string    `json:"operator,omitempty"`
	Since    time.Time `json:"since"`
}

// Presence tracks stream viewers per session in a Redis hash keyed by
// connection id, so several server instances share one view.
type Presence struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client, ttl: 24 * time.Hour}
}

func viewersKey(sessionID string) string {
	return fmt.Sprintf("chat:session:%s:viewers", sessionID)
}

func (p *Presence) Join(ctx context.Context, sessionID string, viewer Viewer) error {
	data, err := json.Marshal(viewer)
	if err != nil {
		return err
	}
	key := viewersKey(sessionID)
	pipe := p.client.TxPipeline()
	pipe.HSet(ctx, key, viewer.ConnID, data)
	pipe.Expire(ctx, key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add viewer to %s: %w", key, err)
	}
	return nil
}

func (p *Presence) Leave(ctx context.Context, sessionID, connID string) error {
	key := viewersKey(sessionID)
	if err := p.client.HDel(ctx, key, connID).Err(); err != nil {
		return fmt.Errorf("remove viewer from %s: %w", key, err)
	}
	return nil
}

// Viewers lists the current viewers of a session. Entries that fail to
// decode are skipped.
func (p *Presence) Viewers(ctx context.Context, sessionID string) ([]Viewer, error) {
	key := viewersKey(sessionID)
	result, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch viewers for key %s: %w", key, err)
	}
	viewers := make([]Viewer, 0, len(result))
	for _, data := range result {
		var v Viewer
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			continue
		}
		viewers = append(viewers, v)
	}
	return viewers, nil
}
