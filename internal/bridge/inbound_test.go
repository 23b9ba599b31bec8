package bridge

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"medilink-chat/internal/bridge/threadid"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/internal/domain/user"
	"medilink-chat/internal/mocks"
	"medilink-chat/internal/services"
	medilink_errors "medilink-chat/pkg/errors"
	"medilink-chat/pkg/logger"
)

func newTestBridge(convRepo *mocks.ConversationRepositoryMock, msgRepo *mocks.MessageRepositoryMock, userRepo *mocks.UserRepositoryMock, broadcaster *mocks.BroadcasterMock, notifier *mocks.NotifierMock, presence *mocks.PresenceMock) *Bridge {
	var bc services.Broadcaster
	if broadcaster != nil {
		bc = broadcaster
	}
	var nt services.Notifier
	if notifier != nil {
		nt = notifier
	}
	var pr services.Presence
	if presence != nil {
		pr = presence
	}
	return New(Config{}, threadid.NewMapper("CRM-TH-"), convRepo, msgRepo, userRepo, bc, nt, pr, logger.New(logger.DevelopmentMode))
}

func TestInboundMessagePersistsAndNotifies(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	notifier := new(mocks.NotifierMock)
	presence := new(mocks.PresenceMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, broadcaster, notifier, presence)

	patientRef := identity.Ref{ID: 9, Role: identity.RolePatient}

	msgRepo.On("GetByExternalID", mock.Anything, "crm-001").Return(message.Message{}, medilink_errors.ErrNotFound).Once()
	userRepo.On("GetByMedicalRecordNumber", mock.Anything, "MRN-7").Return(user.User{ID: 9, MedicalRecordNumber: sql.NullString{String: "MRN-7", Valid: true}}, nil).Once()
	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), patientRef).Return(true, nil).Once()
	msgRepo.On("Create", mock.Anything, mock.AnythingOfType("*message.Message")).Run(func(args mock.Arguments) {
		m := args.Get(1).(*message.Message)
		require.Equal(t, int64(42), m.ConversationID)
		require.Equal(t, "crm-001", m.ExternalMessageID.String)
		require.Equal(t, identity.RoleDoctor, m.SenderRole)
		m.ID = 200
	}).Return(nil).Once()
	convRepo.On("UpdateLastMessage", mock.Anything, int64(42), "Please book a follow-up", mock.Anything).Return(nil).Once()
	convRepo.On("IncrementUnread", mock.Anything, int64(42), identity.Ref{ID: 3, Role: identity.RoleDoctor}).Return(nil).Once()
	broadcaster.On("ToUser", patientRef, mock.Anything).Return().Twice()
	presence.On("IsOnline", mock.Anything, patientRef).Return(false, nil).Once()
	notifier.On("Wake", mock.Anything, patientRef, "Dr. Chen", "Please book a follow-up", mock.Anything).Return(nil).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-001",
		ThreadID:   "CRM-TH-42",
		SenderID:   3,
		SenderRole: "doctor",
		SenderName: "Chen",
		PatientMRN: "MRN-7",
		Type:       "text",
		Content:    "Please book a follow-up",
		SentAt:     time.Now(),
	})
	require.NoError(t, err)

	msgRepo.AssertExpectations(t)
	convRepo.AssertExpectations(t)
	broadcaster.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestInboundDuplicateIsDiscarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, nil, nil, nil)

	msgRepo.On("GetByExternalID", mock.Anything, "crm-001").Return(message.Message{
		ID:                200,
		ExternalMessageID: sql.NullString{String: "crm-001", Valid: true},
	}, nil).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-001",
		ThreadID:   "CRM-TH-42",
		SenderRole: "doctor",
		PatientMRN: "MRN-7",
		Content:    "replayed",
	})
	require.NoError(t, err)
	msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	userRepo.AssertNotCalled(t, "GetByMedicalRecordNumber", mock.Anything, mock.Anything)
}

func TestInboundCreateRaceIsDiscarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, nil, nil, nil)

	msgRepo.On("GetByExternalID", mock.Anything, "crm-001").Return(message.Message{}, medilink_errors.ErrNotFound).Once()
	userRepo.On("GetByMedicalRecordNumber", mock.Anything, "MRN-7").Return(user.User{ID: 9}, nil).Once()
	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), identity.Ref{ID: 9, Role: identity.RolePatient}).Return(true, nil).Once()
	msgRepo.On("Create", mock.Anything, mock.Anything).Return(medilink_errors.ErrAlreadyExists).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-001",
		ThreadID:   "CRM-TH-42",
		SenderRole: "doctor",
		PatientMRN: "MRN-7",
		Content:    "raced",
	})
	require.NoError(t, err)
	convRepo.AssertNotCalled(t, "UpdateLastMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInboundUnparseableThreadIsDiscarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, nil, nil, nil)

	msgRepo.On("GetByExternalID", mock.Anything, "crm-002").Return(message.Message{}, medilink_errors.ErrNotFound).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-002",
		ThreadID:   "LEGACY-42",
		SenderRole: "doctor",
		PatientMRN: "MRN-7",
		Content:    "hi",
	})
	require.NoError(t, err)
	msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInboundUnknownPatientIsDiscarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, nil, nil, nil)

	msgRepo.On("GetByExternalID", mock.Anything, "crm-003").Return(message.Message{}, medilink_errors.ErrNotFound).Once()
	userRepo.On("GetByMedicalRecordNumber", mock.Anything, "MRN-404").Return(user.User{}, medilink_errors.ErrNotFound).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-003",
		ThreadID:   "CRM-TH-42",
		SenderRole: "doctor",
		PatientMRN: "MRN-404",
		Content:    "hi",
	})
	require.NoError(t, err)
	msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestInboundForeignConversationIsDiscarded(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	b := newTestBridge(convRepo, msgRepo, userRepo, nil, nil, nil)

	msgRepo.On("GetByExternalID", mock.Anything, "crm-005").Return(message.Message{}, medilink_errors.ErrNotFound).Once()
	userRepo.On("GetByMedicalRecordNumber", mock.Anything, "MRN-7").Return(user.User{ID: 9}, nil).Once()
	// The thread id parses, but conversation 42 does not include this
	// patient (stale or misattributed external thread).
	convRepo.On("IsActiveParticipant", mock.Anything, int64(42), identity.Ref{ID: 9, Role: identity.RolePatient}).Return(false, nil).Once()

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-005",
		ThreadID:   "CRM-TH-42",
		SenderRole: "doctor",
		PatientMRN: "MRN-7",
		Content:    "hi",
	})
	require.NoError(t, err)
	msgRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	convRepo.AssertExpectations(t)
}

func TestInboundNonCRMRoleIsIgnored(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	b := newTestBridge(new(mocks.ConversationRepositoryMock), msgRepo, new(mocks.UserRepositoryMock), nil, nil, nil)

	err := b.handleMessageCreated(context.Background(), messageCreatedEvent{
		MessageID:  "crm-004",
		ThreadID:   "CRM-TH-42",
		SenderRole: "patient",
		PatientMRN: "MRN-7",
		Content:    "echo of my own message",
	})
	require.NoError(t, err)
	msgRepo.AssertNotCalled(t, "GetByExternalID", mock.Anything, mock.Anything)
}

func TestThreadReadMarksPatientMessages(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	msgRepo := new(mocks.MessageRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	b := newTestBridge(convRepo, msgRepo, new(mocks.UserRepositoryMock), broadcaster, nil, nil)

	msgRepo.On("MarkReadBySenderRole", mock.Anything, int64(42), identity.RolePatient).Return([]int64{5, 6}, nil).Once()
	broadcaster.On("ToConversation", int64(42), mock.Anything).Return().Once()

	require.NoError(t, b.handleThreadRead(context.Background(), threadReadEvent{ThreadID: "CRM-TH-42"}))
	msgRepo.AssertExpectations(t)
	broadcaster.AssertExpectations(t)
}

func TestThreadReadWithNoUnreadIsQuiet(t *testing.T) {
	msgRepo := new(mocks.MessageRepositoryMock)
	broadcaster := new(mocks.BroadcasterMock)
	b := newTestBridge(new(mocks.ConversationRepositoryMock), msgRepo, new(mocks.UserRepositoryMock), broadcaster, nil, nil)

	msgRepo.On("MarkReadBySenderRole", mock.Anything, int64(42), identity.RolePatient).Return([]int64{}, nil).Once()

	require.NoError(t, b.handleThreadRead(context.Background(), threadReadEvent{ThreadID: "CRM-TH-42"}))
	broadcaster.AssertNotCalled(t, "ToConversation", mock.Anything, mock.Anything)
}

func TestHandleEventIgnoresMalformedPayloads(t *testing.T) {
	b := newTestBridge(new(mocks.ConversationRepositoryMock), new(mocks.MessageRepositoryMock), new(mocks.UserRepositoryMock), nil, nil, nil)

	b.handleEvent(context.Background(), []byte("not json"))
	b.handleEvent(context.Background(), []byte(`{"event":"chat.message.created","data":"not an object"}`))
	b.handleEvent(context.Background(), []byte(`{"event":"some.future.event","data":{}}`))
}

func TestWakeTitle(t *testing.T) {
	cases := []struct {
		name  string
		event messageCreatedEvent
		want  string
	}{
		{"doctor with name", messageCreatedEvent{SenderRole: "doctor", SenderName: "Chen"}, "Dr. Chen"},
		{"doctor without name", messageCreatedEvent{SenderRole: "doctor"}, "Your doctor"},
		{"staff with category", messageCreatedEvent{SenderRole: "staff", StaffCategory: "Billing", SenderName: "Ana"}, "Billing"},
		{"staff with name only", messageCreatedEvent{SenderRole: "staff", SenderName: "Ana"}, "Ana"},
		{"staff anonymous", messageCreatedEvent{SenderRole: "staff"}, "Care team"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, wakeTitle(tc.event))
		})
	}
}
