package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-redis/redis/v8"

	"github.com/desain-gratis/congestion/repository/congestion"
	"github.com/desain-gratis/congestion/types/entity"
)

const DefaultKey = "congestion:previous-levels"

var _ congestion.StateStore = &defaultHandler{}

type defaultHandler struct {
	client *redis.Client
	key    string
}

// New stores the whole state as a single JSON value under key
func New(client *redis.Client, key string) *defaultHandler {
	if key == "" {
		key = DefaultKey
	}

	return &defaultHandler{
		client: client,
		key:    key,
	}
}

func (d *defaultHandler) Load(ctx context.Context) (entity.Snapshot, error) {
	str := d.client.Get(ctx, d.key)
	if err := str.Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return entity.Snapshot{}, nil
		}
		return nil, err
	}

	var snapshot entity.Snapshot
	if err := json.Unmarshal([]byte(str.Val()), &snapshot); err != nil {
		return nil, err
	}

	return snapshot, nil
}

func (d *defaultHandler) Save(ctx context.Context, snapshot entity.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return d.client.Set(ctx, d.key, payload, 0).Err()
}
