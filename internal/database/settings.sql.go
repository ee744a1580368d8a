package database

import (
	"context"

	"github.com/kusina-pos/api/internal/model"
)

const getSetting = `SELECT value FROM settings WHERE key = $1`

func (q *Queries) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	if err := q.db.QueryRow(ctx, getSetting, key).Scan(&value); err != nil {
		return "", notFound(err)
	}
	return value, nil
}

const putSetting = `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`

func (q *Queries) PutSetting(ctx context.Context, key, value string) error {
	_, err := q.db.Exec(ctx, putSetting, key, value)
	return err
}

const recordWebhookEvent = `INSERT INTO webhook_events (id, type, received_at) VALUES ($1, $2, $3)
ON CONFLICT (id) DO NOTHING`

func (q *Queries) RecordWebhookEvent(ctx context.Context, ev model.WebhookEvent) (bool, error) {
	tag, err := q.db.Exec(ctx, recordWebhookEvent, ev.ID, ev.Type, ev.ReceivedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
