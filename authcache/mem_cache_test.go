package authcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jpmorganchase/swblocks-baselib-sub004/protocol"
	"github.com/jpmorganchase/swblocks-baselib-sub004/task"
)

func TestEvictRemovesCachedPrincipal(t *testing.T) {
	var c = NewMemCache("bearer", task.NewIOService(1))
	var token = []byte("abc")
	c.Update(token, &protocol.SecurityPrincipal{SID: "alice"})

	var _, ok = c.TryGetAuthorizedPrincipal(token)
	assert.True(t, ok)

	c.Evict(token)
	_, ok = c.TryGetAuthorizedPrincipal(token)
	assert.False(t, ok)
}

func TestUpdateThenReadsReturnEqualPrincipalUntilExpiry(t *testing.T) {
	var c = NewMemCache("bearer", task.NewIOService(1))
	c.ConfigureFreshnessInterval(20 * time.Millisecond)
	var token = []byte("abc")
	var want = &protocol.SecurityPrincipal{SID: "alice"}
	c.Update(token, want)

	var got, ok = c.TryGetAuthorizedPrincipal(token)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.TryGetAuthorizedPrincipal(token)
	assert.False(t, ok)
}

func TestCreateAuthorizationTaskMissResolvesToNilPrincipal(t *testing.T) {
	var c = NewMemCache("bearer", task.NewIOService(1))
	var _, result = c.CreateAuthorizationTask([]byte("never-seen-token"))

	select {
	case p := <-result:
		assert.Nil(t, p, "a cache miss with no concurrent Update resolves to no principal")
	case <-time.After(time.Second):
		t.Fatal("authorization task never resolved")
	}
}
