// Package rediscache keeps editor drafts in Redis.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
)

const draftKeyPrefix = "prepdesk:draft:"

// Open connects to the Redis server of conf and checks it answers.
func Open(ctx context.Context, conf *core.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", conf.Redis.Addr)
	}
	return rdb, nil
}

type draftRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ template.DraftRepository = (*draftRepository)(nil) // interface compliance check

// NewDraftRepository stores drafts as JSON values that expire after ttl (never when ttl is 0).
func NewDraftRepository(rdb *redis.Client, ttl time.Duration) *draftRepository {
	return &draftRepository{rdb: rdb, ttl: ttl}
}

func draftKey(partTemplateID string) string {
	return draftKeyPrefix + partTemplateID
}

func (repo *draftRepository) PutDraft(ctx context.Context, d template.Draft) error {
	data, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "encoding draft")
	}
	if err = repo.rdb.Set(ctx, draftKey(d.PartTemplateID), data, repo.ttl).Err(); err != nil {
		return errors.Wrap(err, "storing draft")
	}
	return nil
}

func (repo *draftRepository) GetDraft(ctx context.Context, partTemplateID string) (template.Draft, error) {
	data, err := repo.rdb.Get(ctx, draftKey(partTemplateID)).Bytes()
	if err == redis.Nil {
		return template.Draft{}, template.ErrDraftNotFound
	}
	if err != nil {
		return template.Draft{}, errors.Wrap(err, "reading draft")
	}

	var d template.Draft
	if err = json.Unmarshal(data, &d); err != nil {
		return template.Draft{}, errors.Wrap(err, "decoding draft")
	}
	return d, nil
}

func (repo *draftRepository) DeleteDraft(ctx context.Context, partTemplateID string) error {
	n, err := repo.rdb.Del(ctx, draftKey(partTemplateID)).Result()
	if err != nil {
		return errors.Wrap(err, "deleting draft")
	}
	if n == 0 {
		return template.ErrDraftNotFound
	}
	return nil
}
