package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crowdship/pkg/geo"

	"github.com/redis/go-redis/v9"
)

// livePosTTL bounds how long a position counts as current. A carrier that
// stops reporting disappears from the tracking page well before the
// signal-loss scan acts on the gap.
const livePosTTL = 15 * time.Minute

// LiveStore keeps the newest carrier position per delivery. Breadcrumbs go to
// PostgreSQL; this is only the hot "where is it right now" answer.
type LiveStore interface {
	SetPosition(ctx context.Context, deliveryID string, p geo.Point) error
	Position(ctx context.Context, deliveryID string) (geo.Point, bool, error)
}

type RedisLiveStore struct {
	rdb *redis.Client
}

func NewRedisLiveStore(rdb *redis.Client) *RedisLiveStore {
	return &RedisLiveStore{rdb: rdb}
}

func livePosKey(deliveryID string) string {
	return fmt.Sprintf("delivery:%s:pos", deliveryID)
}

func (s *RedisLiveStore) SetPosition(ctx context.Context, deliveryID string, p geo.Point) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("livestore.SetPosition: %w", err)
	}
	if err := s.rdb.Set(ctx, livePosKey(deliveryID), payload, livePosTTL).Err(); err != nil {
		return fmt.Errorf("livestore.SetPosition: %w", err)
	}
	return nil
}

func (s *RedisLiveStore) Position(ctx context.Context, deliveryID string) (geo.Point, bool, error) {
	payload, err := s.rdb.Get(ctx, livePosKey(deliveryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return geo.Point{}, false, nil
		}
		return geo.Point{}, false, fmt.Errorf("livestore.Position: %w", err)
	}
	var p geo.Point
	if err := json.Unmarshal(payload, &p); err != nil {
		return geo.Point{}, false, fmt.Errorf("livestore.Position: %w", err)
	}
	return p, true, nil
}
