package server

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/events"
	"medilink-chat/internal/mocks"
	"medilink-chat/internal/services"
	medilink_errors "medilink-chat/pkg/errors"
	"medilink-chat/pkg/logger"
)

var (
	testPatient = identity.Ref{ID: 1, Role: identity.RolePatient}
	testDoctor  = identity.Ref{ID: 3, Role: identity.RoleDoctor}
)

func newTestHub(convRepo *mocks.ConversationRepositoryMock) *Hub {
	svc := services.NewChatService(convRepo, new(mocks.MessageRepositoryMock), nil, nil, logger.New(logger.DevelopmentMode))
	hub := NewHub(svc, nil)
	svc.AttachBroadcaster(hub)
	return hub
}

func addTestClient(hub *Hub, u identity.Ref, clientID string) *Client {
	client := NewClient(hub, nil, u, clientID, NewWebSocketLogger())
	hub.handleRegister(client)
	return client
}

func drainEvent(t *testing.T, c *Client) events.Event {
	t.Helper()
	select {
	case data := <-c.send:
		var ev events.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return events.Event{}
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	hub := newTestHub(new(mocks.ConversationRepositoryMock))

	client := addTestClient(hub, testPatient, "c1")
	hub.mu.RLock()
	require.Len(t, hub.clients[testPatient.Key()], 1)
	hub.mu.RUnlock()

	hub.handleUnregister(client)
	hub.mu.RLock()
	require.Empty(t, hub.clients)
	hub.mu.RUnlock()
}

func TestSecondConnectionForSameUser(t *testing.T) {
	hub := newTestHub(new(mocks.ConversationRepositoryMock))

	c1 := addTestClient(hub, testPatient, "c1")
	c2 := addTestClient(hub, testPatient, "c2")

	hub.mu.RLock()
	require.Len(t, hub.clients[testPatient.Key()], 2)
	hub.mu.RUnlock()

	// c1 saw no presence event for c2: same user was already online.
	select {
	case <-c1.send:
		t.Fatal("unexpected event on existing connection")
	default:
	}

	hub.handleUnregister(c1)
	hub.mu.RLock()
	require.Len(t, hub.clients[testPatient.Key()], 1)
	hub.mu.RUnlock()
	hub.handleUnregister(c2)
}

func TestJoinConversationChecksParticipancy(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := newTestHub(convRepo)
	client := addTestClient(hub, testPatient, "c1")

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), testPatient).Return(true, nil).Once()
	convRepo.On("IsActiveParticipant", mock.Anything, int64(99), testPatient).Return(false, nil).Once()

	require.NoError(t, hub.JoinConversation(context.Background(), client, 42))
	require.ErrorIs(t, hub.JoinConversation(context.Background(), client, 99), medilink_errors.ErrNotAParticipant)

	hub.mu.RLock()
	require.True(t, client.conversations[42])
	require.False(t, client.conversations[99])
	hub.mu.RUnlock()
}

func TestToConversationReachesOnlyRoomMembers(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := newTestHub(convRepo)
	member := addTestClient(hub, testPatient, "c1")
	outsider := addTestClient(hub, testDoctor, "c2")
	drainEvent(t, member) // doctor's user_online broadcast

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), testPatient).Return(true, nil).Once()
	require.NoError(t, hub.JoinConversation(context.Background(), member, 42))

	hub.ToConversation(42, events.Event{Type: events.TypeReceiveMessage})

	ev := drainEvent(t, member)
	require.Equal(t, events.TypeReceiveMessage, ev.Type)

	select {
	case <-outsider.send:
		t.Fatal("event leaked outside the room")
	default:
	}
}

func TestToOthersInConversationSkipsSender(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := newTestHub(convRepo)
	sender := addTestClient(hub, testPatient, "c1")
	peer := addTestClient(hub, testDoctor, "c2")
	drainEvent(t, sender) // doctor's user_online broadcast

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), mock.Anything).Return(true, nil).Twice()
	require.NoError(t, hub.JoinConversation(context.Background(), sender, 42))
	require.NoError(t, hub.JoinConversation(context.Background(), peer, 42))

	hub.ToOthersInConversation(42, "c1", events.Event{Type: events.TypeReceiveMessage})

	ev := drainEvent(t, peer)
	require.Equal(t, events.TypeReceiveMessage, ev.Type)

	select {
	case <-sender.send:
		t.Fatal("sender received its own message")
	default:
	}
}

func TestToUserReachesEveryConnectionOfUser(t *testing.T) {
	hub := newTestHub(new(mocks.ConversationRepositoryMock))
	c1 := addTestClient(hub, testPatient, "c1")
	c2 := addTestClient(hub, testPatient, "c2")

	hub.ToUser(testPatient, events.Event{Type: events.TypeUnreadCountUpdated})

	require.Equal(t, events.TypeUnreadCountUpdated, drainEvent(t, c1).Type)
	require.Equal(t, events.TypeUnreadCountUpdated, drainEvent(t, c2).Type)
}

func TestSendEventAfterShutdownIsDropped(t *testing.T) {
	hub := newTestHub(new(mocks.ConversationRepositoryMock))
	client := addTestClient(hub, testPatient, "c1")

	hub.Stop()

	// A pong or error event can race hub shutdown; it must be dropped
	// silently, not panic on the closed channel.
	client.sendEvent(events.Event{Type: events.TypePong})

	select {
	case _, ok := <-client.send:
		require.False(t, ok)
	default:
		t.Fatal("send channel not closed")
	}
}

func TestSendEventAfterUnregisterIsDropped(t *testing.T) {
	hub := newTestHub(new(mocks.ConversationRepositoryMock))
	client := addTestClient(hub, testPatient, "c1")

	hub.handleUnregister(client)
	client.sendEvent(events.Event{Type: events.TypeError})
}

func TestLeaveConversation(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	hub := newTestHub(convRepo)
	client := addTestClient(hub, testPatient, "c1")

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), testPatient).Return(true, nil).Once()
	require.NoError(t, hub.JoinConversation(context.Background(), client, 42))

	hub.LeaveConversation(client, 42)

	hub.ToConversation(42, events.Event{Type: events.TypeReceiveMessage})
	select {
	case <-client.send:
		t.Fatal("received event after leaving the room")
	default:
	}
}
