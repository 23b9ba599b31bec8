package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"medilink-chat/internal/bridge/threadid"
	"medilink-chat/internal/domain/identity"
	"medilink-chat/internal/domain/message"
	"medilink-chat/pkg/logger"
)

// ForwarderConfig carries the per-role API surfaces of the external
// system: it partitions its HTTP API by whether a message originated from
// a doctor or not.
type ForwarderConfig struct {
	DoctorAPIBase string
	StaffAPIBase  string
	APIToken      string
}

// Forwarder pushes locally-sent messages to the CRM over HTTP. Forwarding
// is best-effort: the local message is already committed when a forward
// runs, and a failure is logged, never rolled back.
type Forwarder struct {
	cfg    ForwarderConfig
	mapper threadid.Mapper
	client *http.Client
	log    *logger.Logger
}

func NewForwarder(cfg ForwarderConfig, mapper threadid.Mapper, log *logger.Logger) *Forwarder {
	return &Forwarder{
		cfg:    cfg,
		mapper: mapper,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}
}

type outboundMessage struct {
	ThreadID       string `json:"thread_id"`
	LocalMessageID int64  `json:"local_message_id"`
	SenderID       int64  `json:"sender_id"`
	SenderRole     string `json:"sender_role"`
	Type           string `json:"type"`
	Content        string `json:"content,omitempty"`
	FileURL        string `json:"file_url,omitempty"`
	FileName       string `json:"file_name,omitempty"`
	FileSize       int64  `json:"file_size,omitempty"`
	SentAt         string `json:"sent_at"`
}

// ForwardMessage ensures the external thread exists and posts the message
// to the role-appropriate API surface.
func (f *Forwarder) ForwardMessage(ctx context.Context, msg message.Message) error {
	base := f.baseFor(msg.SenderRole)
	threadID := f.mapper.Format(msg.ConversationID)

	if err := f.post(ctx, base+"/get-or-create-thread", map[string]string{"thread_id": threadID}); err != nil {
		return fmt.Errorf("get-or-create-thread %s: %w", threadID, err)
	}

	out := outboundMessage{
		ThreadID:       threadID,
		LocalMessageID: msg.ID,
		SenderID:       msg.SenderID,
		SenderRole:     string(msg.SenderRole),
		Type:           msg.Type,
		SentAt:         msg.SentAt.UTC().Format(time.RFC3339),
	}
	if msg.Content.Valid {
		out.Content = msg.Content.String
	}
	if msg.FileURL.Valid {
		out.FileURL = msg.FileURL.String
	}
	if msg.FileName.Valid {
		out.FileName = msg.FileName.String
	}
	if msg.FileSize.Valid {
		out.FileSize = msg.FileSize.Int64
	}

	if err := f.post(ctx, base+"/send-message", out); err != nil {
		return fmt.Errorf("send-message for thread %s: %w", threadID, err)
	}
	return nil
}

func (f *Forwarder) baseFor(role identity.Role) string {
	if role == identity.RoleDoctor {
		return f.cfg.DoctorAPIBase
	}
	return f.cfg.StaffAPIBase
}

func (f *Forwarder) post(ctx context.Context, url string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.APIToken)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
