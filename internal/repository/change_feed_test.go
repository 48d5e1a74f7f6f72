package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisChangeFeedPublishFailureFallsBackToLocalDelivery(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	feed := NewRedisChangeFeed(client, "", nil)

	store, mock, cleanup := newPostgresStoreMock(t, feed)
	defer cleanup()

	snapshots := make(chan int, 4)
	mock.ExpectQuery("SELECT id, data").WillReturnRows(documentRows())
	unsubscribe, err := store.Subscribe(context.Background(), "items", Query{}, func(docs []Document) {
		snapshots <- len(docs)
	})
	require.NoError(t, err)
	defer unsubscribe()
	assert.Equal(t, 0, <-snapshots)

	now := time.Now()
	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT id, data").WillReturnRows(documentRows().AddRow("a", []byte(`{"id":"a"}`), now, now))

	require.NoError(t, store.Set(context.Background(), "items", "a", map[string]string{"id": "a"}))
	select {
	case n := <-snapshots:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("local subscribers were not notified")
	}
}

type countingNotifier struct{ ch chan string }

func (n countingNotifier) Notify(collection string) { n.ch <- collection }

func TestRedisChangeFeedListenReturnsOnSubscribeFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	feed := NewRedisChangeFeed(client, "test:", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := feed.Listen(ctx, countingNotifier{ch: make(chan string, 1)})
	require.Error(t, err)
}
