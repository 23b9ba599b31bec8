package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medilink-chat/internal/domain/conversation"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/mocks"
	"medilink-chat/internal/services"
	medilink_errors "medilink-chat/pkg/errors"
	"medilink-chat/pkg/logger"
)

var testPatient = identity.Ref{ID: 1, Role: identity.RolePatient}

func setupChatRouter(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock) *gin.Engine {
	gin.SetMode(gin.TestMode)
	svc := services.NewChatService(convRepo, msgRepo, nil, nil, logger.New(logger.DevelopmentMode))
	h := NewChatHandler(svc)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithIdentity(c.Request.Context(), testPatient))
		c.Next()
	})
	r.GET("/v1/conversations", h.ListConversations)
	r.POST("/v1/conversations/direct", h.GetOrCreateDirect)
	r.GET("/v1/conversations/:id/messages", h.ListMessages)
	r.POST("/v1/conversations/:id/messages", h.SendMessage)
	r.POST("/v1/conversations/:id/read", h.MarkRead)
	r.DELETE("/v1/messages/:message_id", h.DeleteMessage)
	return r
}

func TestListConversations(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupChatRouter(convRepo, new(mocks.MessageRepositoryMock))

	convRepo.On("GetUserConversations", mock.Anything, testPatient, 1, 20).Return([]conversation.Conversation{
		{ID: 42, Type: conversation.TypeOneToOne},
	}, int64(1), nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/v1/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, true, resp["success"])
	convRepo.AssertExpectations(t)
}

func TestSendMessageToForeignConversationIsForbidden(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupChatRouter(convRepo, new(mocks.MessageRepositoryMock))

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), testPatient).Return(false, nil).Once()

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/42/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestSendMessageSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(convRepo, msgRepo)

	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), testPatient).Return(true, nil).Once()
	msgRepo.On("Create", mock.Anything, mock.AnythingOfType("*message.Message")).Run(func(args mock.Arguments) {
		args.Get(1).(*message.Message).ID = 101
	}).Return(nil).Once()
	convRepo.On("UpdateLastMessage", mock.Anything, int64(42), "hi", mock.Anything).Return(nil).Once()
	convRepo.On("IncrementUnread", mock.Anything, int64(42), testPatient).Return(nil).Once()
	convRepo.On("GetParticipants", mock.Anything, int64(42)).Return([]conversation.Participant{}, nil).Once()

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/42/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	msgRepo.AssertExpectations(t)
}

func TestSendMessageInvalidConversationID(t *testing.T) {
	router := setupChatRouter(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock))

	body := bytes.NewBufferString(`{"content":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/abc/messages", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetOrCreateDirect(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	router := setupChatRouter(convRepo, new(mocks.MessageRepositoryMock))

	doctor := identity.Ref{ID: 3, Role: identity.RoleDoctor}
	pairKey := identity.PairKey(testPatient, doctor)
	convRepo.On("GetByPairKey", mock.Anything, pairKey).Return(conversation.Conversation{}, medilink_errors.ErrNotFound).Once()
	convRepo.On("Create", mock.Anything, mock.AnythingOfType("*conversation.Conversation")).Run(func(args mock.Arguments) {
		args.Get(1).(*conversation.Conversation).ID = 42
	}).Return(nil).Once()

	body := bytes.NewBufferString(`{"peer_id":3,"peer_role":"doctor"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/conversations/direct", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data struct {
			Created      bool `json:"created"`
			Conversation struct {
				ID int64 `json:"id"`
			} `json:"conversation"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.True(t, resp.Data.Created)
	require.Equal(t, int64(42), resp.Data.Conversation.ID)
	convRepo.AssertExpectations(t)
}

func TestDeleteForeignMessageIsForbidden(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	router := setupChatRouter(new(mocks.ConversationRepositoryMock), msgRepo)

	msgRepo.On("GetByID", mock.Anything, int64(101)).Return(message.Message{
		ID: 101, ConversationID: 42, SenderID: 3, SenderRole: identity.RoleDoctor,
	}, nil).Once()

	req := httptest.NewRequest(http.MethodDelete, "/v1/messages/101", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	msgRepo.AssertNotCalled(t, "SoftDelete", mock.Anything, mock.Anything)
}
