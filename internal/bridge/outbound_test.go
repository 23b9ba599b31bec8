package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"medilink-chat/internal/bridge/threadid"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/pkg/logger"
)

type recordedCall struct {
	path string
	auth string
	body map[string]interface{}
}

func newRecordingServer(t *testing.T, calls *[]recordedCall) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		*calls = append(*calls, recordedCall{
			path: r.URL.Path,
			auth: r.Header.Get("Authorization"),
			body: body,
		})
		w.WriteHeader(http.StatusOK)
	}))
}

func testMessage(role identity.Role) message.Message {
	return message.Message{
		ID:             101,
		ConversationID: 42,
		SenderID:       3,
		SenderRole:     role,
		Type:           message.TypeText,
		SentAt:         time.Now(),
	}
}

func TestForwardMessagePartitionsByRole(t *testing.T) {
	var doctorCalls, staffCalls []recordedCall
	doctorSrv := newRecordingServer(t, &doctorCalls)
	defer doctorSrv.Close()
	staffSrv := newRecordingServer(t, &staffCalls)
	defer staffSrv.Close()

	f := NewForwarder(ForwarderConfig{
		DoctorAPIBase: doctorSrv.URL,
		StaffAPIBase:  staffSrv.URL,
		APIToken:      "secret",
	}, threadid.NewMapper("CRM-TH-"), logger.New(logger.DevelopmentMode))

	require.NoError(t, f.ForwardMessage(context.Background(), testMessage(identity.RoleDoctor)))
	require.Len(t, doctorCalls, 2)
	require.Empty(t, staffCalls)

	require.NoError(t, f.ForwardMessage(context.Background(), testMessage(identity.RoleStaff)))
	require.Len(t, staffCalls, 2)
}

func TestForwardMessageEnsuresThreadFirst(t *testing.T) {
	var calls []recordedCall
	srv := newRecordingServer(t, &calls)
	defer srv.Close()

	f := NewForwarder(ForwarderConfig{
		DoctorAPIBase: srv.URL,
		StaffAPIBase:  srv.URL,
		APIToken:      "secret",
	}, threadid.NewMapper("CRM-TH-"), logger.New(logger.DevelopmentMode))

	require.NoError(t, f.ForwardMessage(context.Background(), testMessage(identity.RoleDoctor)))

	require.Len(t, calls, 2)
	require.Equal(t, "/get-or-create-thread", calls[0].path)
	require.Equal(t, "CRM-TH-42", calls[0].body["thread_id"])
	require.Equal(t, "Bearer secret", calls[0].auth)

	require.Equal(t, "/send-message", calls[1].path)
	require.Equal(t, "CRM-TH-42", calls[1].body["thread_id"])
	require.Equal(t, float64(101), calls[1].body["local_message_id"])
}

func TestForwardMessageReportsServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewForwarder(ForwarderConfig{
		DoctorAPIBase: srv.URL,
		StaffAPIBase:  srv.URL,
	}, threadid.NewMapper("CRM-TH-"), logger.New(logger.DevelopmentMode))

	require.Error(t, f.ForwardMessage(context.Background(), testMessage(identity.RoleDoctor)))
}
