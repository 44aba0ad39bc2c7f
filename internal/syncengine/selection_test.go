package syncengine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"text-sync/internal/domain"
	"text-sync/internal/syncengine"
)

func TestSelection_Reconcile(t *testing.T) {
	var sel syncengine.Selection
	list := []domain.Message{{ID: "a"}, {ID: "b"}}

	id, changed := sel.Reconcile(list)
	assert.Equal(t, "a", id, "默认选中第一条")
	assert.True(t, changed)

	assert.True(t, sel.Select("b", list))
	assert.False(t, sel.Select("zzz", list))
	id, changed = sel.Reconcile(list)
	assert.Equal(t, "b", id)
	assert.False(t, changed)

	id, changed = sel.Reconcile([]domain.Message{{ID: "a"}})
	assert.Equal(t, "a", id, "选中项被删除后改选第一条")
	assert.True(t, changed)

	id, changed = sel.Reconcile(nil)
	assert.Equal(t, "", id)
	assert.True(t, changed)
}

func TestSelection_FollowsEngineDeletes(t *testing.T) {
	feed := newMemFeed()
	store := newMemStore(feed)
	store.seed(room, "m1", "a")
	store.seed(room, "m2", "b")
	e := openEngine(t, store, feed)

	var sel syncengine.Selection
	sel.Reconcile(e.ListMessages())
	require.True(t, sel.Select("m2", e.ListMessages()))

	_, err := e.DeleteMessage(context.Background(), "m2")
	require.NoError(t, err)
	id, _ := sel.Reconcile(e.ListMessages())
	assert.Equal(t, "m1", id)

	_, err = e.DeleteMessage(context.Background(), "m1")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		id, _ := sel.Reconcile(e.ListMessages())
		return id == ""
	}, time.Second, 5*time.Millisecond)
}
