package history_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crisismesh/meshchat/internal/history"
	"github.com/crisismesh/meshchat/pkg/protocol"
)

func TestLog_AppendPreservesOrder(t *testing.T) {
	log := history.New()

	for i := 0; i < 5; i++ {
		log.Append(protocol.NewMessage(fmt.Sprintf("msg-%d", i), protocol.OriginPeer))
	}

	all := log.All()
	require.Len(t, all, 5)
	for i, msg := range all {
		assert.Equal(t, fmt.Sprintf("msg-%d", i), msg.Text)
	}
}

func TestLog_AllReturnsSnapshot(t *testing.T) {
	log := history.New()
	log.Append(protocol.NewMessage("original", protocol.OriginSelf))

	snapshot := log.All()
	snapshot[0].Text = "mutated"

	assert.Equal(t, "original", log.All()[0].Text)
}

func TestLog_BoundedEvictsOldest(t *testing.T) {
	log := history.NewBounded(3)

	for i := 0; i < 5; i++ {
		log.Append(protocol.NewMessage(fmt.Sprintf("msg-%d", i), protocol.OriginPeer))
	}

	all := log.All()
	require.Len(t, all, 3)
	assert.Equal(t, "msg-2", all[0].Text)
	assert.Equal(t, "msg-4", all[2].Text)
}

func TestLog_Len(t *testing.T) {
	log := history.New()
	assert.Equal(t, 0, log.Len())

	log.Append(protocol.NewMessage("one", protocol.OriginSelf))
	assert.Equal(t, 1, log.Len())
}
