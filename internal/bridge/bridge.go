package bridge

import (
	"context"
	"sync"
	"time"

	"medilink-chat/internal/bridge/threadid"
	"medilink-chat/internal/repository"
	"medilink-chat/internal/services"
	"medilink-chat/pkg/logger"

	"github.com/gorilla/websocket"
)

// State of the bridge's persistent CRM connection.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "disconnected"
}

type Config struct {
	SocketURL      string
	APIToken       string
	ActiveWindow   time.Duration
	RescanInterval time.Duration
	ReconnectDelay time.Duration
}

// Bridge owns the long-lived connection to the external case-management
// system. One background goroutine drives connect/listen/reconnect for
// the process lifetime; inbound events are handled concurrently.
type Bridge struct {
	cfg    Config
	mapper threadid.Mapper

	convRepo    repository.ConversationRepository
	msgRepo     repository.MessageRepository
	userRepo    repository.UserRepository
	broadcaster services.Broadcaster
	notifier    services.Notifier
	presence    services.Presence
	log         *logger.Logger

	dialer *websocket.Dialer
	joined *threadSet

	mu      sync.Mutex // guards conn and state
	conn    *websocket.Conn
	state   State
	writeMu sync.Mutex // serializes writes to conn
	wg      sync.WaitGroup
}

func New(cfg Config, mapper threadid.Mapper, convRepo repository.ConversationRepository, msgRepo repository.MessageRepository, userRepo repository.UserRepository, broadcaster services.Broadcaster, notifier services.Notifier, presence services.Presence, log *logger.Logger) *Bridge {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = 72 * time.Hour
	}
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = 30 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Bridge{
		cfg:         cfg,
		mapper:      mapper,
		convRepo:    convRepo,
		msgRepo:     msgRepo,
		userRepo:    userRepo,
		broadcaster: broadcaster,
		notifier:    notifier,
		presence:    presence,
		log:         log,
		dialer:      websocket.DefaultDialer,
		joined:      newThreadSet(),
	}
}

func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Run drives the connect/listen/reconnect loop until ctx is cancelled.
// The first connect attempt is immediate; later attempts wait the fixed
// reconnect delay.
func (b *Bridge) Run(ctx context.Context) {
	defer b.setState(StateDisconnected)

	var delay time.Duration
	for {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
		if ctx.Err() != nil {
			return
		}

		b.setState(StateConnecting)
		conn, err := b.dial(ctx)
		if err != nil {
			b.log.Warnf("CRM connect failed: %v", err)
			b.setState(StateReconnecting)
			delay = b.cfg.ReconnectDelay
			continue
		}

		b.setConn(conn)
		b.setState(StateConnected)
		b.log.Infof("CRM bridge connected to %s", b.cfg.SocketURL)

		// The external system does not preserve room subscriptions across
		// reconnects: drop the old set and rejoin from scratch.
		b.joined.Clear()
		b.joinActiveThreads(ctx)

		listenCtx, cancel := context.WithCancel(ctx)
		go b.rescanLoop(listenCtx)
		err = b.readLoop(listenCtx, conn)
		cancel()
		conn.Close()
		b.setConn(nil)
		b.wg.Wait()

		if ctx.Err() != nil {
			return
		}
		b.log.Warnf("CRM connection lost: %v", err)
		b.setState(StateReconnecting)
		delay = b.cfg.ReconnectDelay
	}
}

func (b *Bridge) dial(ctx context.Context) (*websocket.Conn, error) {
	header := make(map[string][]string)
	if b.cfg.APIToken != "" {
		header["Authorization"] = []string{"Bearer " + b.cfg.APIToken}
	}
	conn, _, err := b.dialer.DialContext(ctx, b.cfg.SocketURL, header)
	return conn, err
}

func (b *Bridge) setConn(conn *websocket.Conn) {
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
}

// joinActiveThreads subscribes to every CRM thread whose conversation was
// touched within the recency window and is not yet joined.
func (b *Bridge) joinActiveThreads(ctx context.Context) {
	since := time.Now().Add(-b.cfg.ActiveWindow)
	ids, err := b.convRepo.ActiveConversationIDs(ctx, since)
	if err != nil {
		b.log.Errorf("active conversation scan failed: %v", err)
		return
	}
	for _, id := range ids {
		threadID := b.mapper.Format(id)
		if !b.joined.Add(threadID) {
			continue
		}
		if err := b.sendJoin(threadID); err != nil {
			b.log.Warnf("join for thread %s failed: %v", threadID, err)
		}
	}
}

// rescanLoop periodically picks up conversations that became active after
// the last join pass; the external system pushes no "new thread" event.
func (b *Bridge) rescanLoop(ctx context.Context) {
	ticker := time.NewTicker(b.cfg.RescanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.joinActiveThreads(ctx)
		}
	}
}

func (b *Bridge) sendJoin(threadID string) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return conn.WriteJSON(joinRequest{Action: "join", ThreadID: threadID})
}

type joinRequest struct {
	Action   string `json:"action"`
	ThreadID string `json:"thread_id"`
}

// readLoop reads events until the connection fails. Each event is handled
// in its own goroutine so one slow or failing event cannot stall the
// stream.
func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		b.wg.Add(1)
		go func(raw []byte) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.log.Errorf("panic in CRM event handler: %v", r)
				}
			}()
			b.handleEvent(ctx, raw)
		}(data)
	}
}
