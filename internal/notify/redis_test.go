package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/housing-queue/internal/model"
)

func TestRedisNotifier_AppendsToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	notifier := NewRedisNotifierWithClient(client, DefaultStream)
	ctx := context.Background()

	require.NoError(t, notifier.Notify(ctx, testNotification()))

	msgs, err := client.XRange(ctx, DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, "STATUS_CHANGE", msgs[0].Values["kind"])
	assert.Equal(t, "APP000001", msgs[0].Values["application_number"])

	var got model.Notification
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["payload"].(string)), &got))
	assert.Equal(t, testNotification(), got)
}

func TestNewRedisNotifier_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisNotifier(context.Background(), addr)
	assert.Error(t, err)
}

type recordingNotifier struct {
	got []model.Notification
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, n model.Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	ok := &recordingNotifier{}

	err := Multi{failing, ok, Nop{}}.Notify(context.Background(), testNotification())

	assert.Error(t, err)
	assert.Len(t, failing.got, 1)
	assert.Len(t, ok.got, 1)
}
