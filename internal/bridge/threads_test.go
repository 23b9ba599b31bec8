package bridge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medilink-chat/internal/mocks"
)

func TestThreadSetAddReportsNew(t *testing.T) {
	s := newThreadSet()

	require.True(t, s.Add("CRM-TH-1"))
	require.False(t, s.Add("CRM-TH-1"))
	require.True(t, s.Add("CRM-TH-2"))
	require.Equal(t, 2, s.Len())
	require.True(t, s.Has("CRM-TH-1"))
	require.False(t, s.Has("CRM-TH-3"))
}

func TestThreadSetClear(t *testing.T) {
	s := newThreadSet()
	s.Add("CRM-TH-1")
	s.Add("CRM-TH-2")

	s.Clear()
	require.Equal(t, 0, s.Len())
	// A cleared id counts as new again, so a rejoin after reconnect
	// actually sends the join frame.
	require.True(t, s.Add("CRM-TH-1"))
}

func TestRejoinsActiveThreadsAfterReconnect(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	b := newTestBridge(convRepo, new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), nil, nil, nil)

	convRepo.On("ActiveConversationIDs", mock.Anything, mock.Anything).Return([]int64{1, 2}, nil).Times(3)

	b.joinActiveThreads(context.Background())
	require.Equal(t, 2, b.joined.Len())
	require.True(t, b.joined.Has("CRM-TH-1"))
	require.True(t, b.joined.Has("CRM-TH-2"))

	// The external system drops room subscriptions on reconnect, so the
	// connect path clears the set and every active thread is joined again.
	b.joined.Clear()
	b.joinActiveThreads(context.Background())
	require.Equal(t, 2, b.joined.Len())
	require.True(t, b.joined.Has("CRM-TH-1"))
	require.True(t, b.joined.Has("CRM-TH-2"))

	// A rescan pass on the same connection finds nothing new to join.
	b.joinActiveThreads(context.Background())
	require.Equal(t, 2, b.joined.Len())
	convRepo.AssertExpectations(t)
}

func TestStateString(t *testing.T) {
	require.Equal(t, "disconnected", StateDisconnected.String())
	require.Equal(t, "connecting", StateConnecting.String())
	require.Equal(t, "connected", StateConnected.String())
	require.Equal(t, "reconnecting", StateReconnecting.String())
}
