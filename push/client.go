package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"drudge/models"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"
)

var (
	wsConnectionAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drudge_push_connection_attempts_total",
		Help: "The total number of connection attempts to the push service",
	})

	wsConnectionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "drudge_push_connection_errors_total",
		Help: "The total number of connection errors encountered",
	})

	wsCurrentConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "drudge_push_current_connections",
		Help: "The current number of active push connections",
	})

	wsConnectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "drudge_push_connection_duration_seconds",
		Help:    "Duration of push connections",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	wsHostSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drudge_push_host_switches_total",
		Help: "Number of times the connection switched to a different endpoint",
	}, []string{"from_host", "to_host"})

	wsEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "drudge_push_events_total",
		Help: "Events received from the push service",
	}, []string{"event"})
)

const (
	wsReadBufferSize  = 1024 * 1024
	wsWriteBufferSize = 1024
	wsReadTimeout     = 60 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

var ErrServerClosed = errors.New("push server closed the session")

// Config holds configuration for the push connection
type Config struct {
	// Endpoints is a list of push service base URLs to try in order
	// e.g. ["https://push.example.com", "wss://push-backup.example.com"]
	Endpoints []string
	Namespace string
	UserAgent string
	// MaxBackoff caps the delay between reconnect attempts
	MaxBackoff time.Duration
	// Status, when set, follows the connection state
	Status *Status
}

// Sink receives every snapshot event in arrival order
type Sink interface {
	ReplaceAll(kind models.EventKind, raw json.RawMessage) bool
}

// SocketURL turns an endpoint into its Engine.IO websocket URL
func SocketURL(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in %s", u.Scheme, endpoint)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}

	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func newBackoff(config Config) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	if config.MaxBackoff > 0 {
		b.MaxInterval = config.MaxBackoff
	}
	b.Multiplier = 1.5
	b.MaxElapsedTime = 0
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dial connects to the first reachable endpoint, cycling through the list
// and backing off after each full round of failures.
func Dial(ctx context.Context, config Config) (*websocket.Conn, string, error) {
	if len(config.Endpoints) == 0 {
		return nil, "", fmt.Errorf("no endpoints provided in config")
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   wsReadBufferSize,
		WriteBufferSize:  wsWriteBufferSize,
		HandshakeTimeout: 45 * time.Second,
		NetDialContext: (&net.Dialer{
			Timeout:   45 * time.Second,
			KeepAlive: 45 * time.Second,
		}).DialContext,
	}

	headers := http.Header{}
	if config.UserAgent != "" {
		headers.Set("User-Agent", config.UserAgent)
	}

	retry := newBackoff(config)
	currentIdx := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		endpoint := config.Endpoints[currentIdx]
		socketURL, err := SocketURL(endpoint)
		if err != nil {
			return nil, "", err
		}

		wsConnectionAttempts.Inc()
		conn, _, err := dialer.DialContext(ctx, socketURL, headers)
		if err == nil {
			return conn, endpoint, nil
		}

		wsConnectionErrors.Inc()
		config.Status.MarkDisconnected(endpoint, err)
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"error":    err,
		}).Error("Error connecting to push endpoint")

		nextIdx := (currentIdx + 1) % len(config.Endpoints)
		if nextIdx != currentIdx {
			wsHostSwitches.WithLabelValues(endpoint, config.Endpoints[nextIdx]).Inc()
			log.Infof("Switching from endpoint %s to %s", endpoint, config.Endpoints[nextIdx])
			currentIdx = nextIdx
		}

		// wait once every endpoint has been tried
		if currentIdx == 0 {
			if err := sleep(ctx, retry.NextBackOff()); err != nil {
				return nil, "", err
			}
		}
	}
}

// Subscribe keeps a session open until ctx is done, reconnecting whenever
// the connection drops. Events are handed to sink one at a time.
func Subscribe(ctx context.Context, config Config, sink Sink) error {
	log.WithFields(log.Fields{
		"endpoints": config.Endpoints,
	}).Info("Subscribing to push service")

	retry := newBackoff(config)

	for {
		conn, endpoint, err := Dial(ctx, config)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		started := time.Now()
		wsCurrentConnections.Inc()
		sess := newSession(conn, config.Namespace, sink)
		sess.endpoint = endpoint
		sess.status = config.Status
		err = sess.run(ctx)
		wsCurrentConnections.Dec()
		wsConnectionDuration.Observe(time.Since(started).Seconds())

		if ctx.Err() != nil {
			config.Status.MarkDisconnected(endpoint, nil)
			log.Info("Push subscription stopped")
			return nil
		}
		config.Status.MarkDisconnected(endpoint, err)

		wsConnectionErrors.Inc()
		log.WithFields(log.Fields{
			"endpoint": endpoint,
			"error":    err,
		}).Warn("Disconnected from push service, reconnecting")

		// a session that lived a while starts the backoff over
		if time.Since(started) > wsReadTimeout {
			retry.Reset()
		}
		if err := sleep(ctx, retry.NextBackOff()); err != nil {
			return nil
		}
	}
}

type session struct {
	conn        *websocket.Conn
	namespace   string
	sink        Sink
	readTimeout time.Duration
	endpoint    string
	status      *Status
}

func newSession(conn *websocket.Conn, namespace string, sink Sink) *session {
	if namespace == "" {
		namespace = "/"
	}
	return &session{
		conn:        conn,
		namespace:   namespace,
		sink:        sink,
		readTimeout: wsReadTimeout,
	}
}

// run reads frames until the connection fails or ctx is done. All writes
// happen on this goroutine.
func (s *session) run(ctx context.Context) error {
	defer s.conn.Close()
	stop := context.AfterFunc(ctx, func() {
		s.conn.Close()
	})
	defer stop()

	s.conn.SetCloseHandler(func(code int, text string) error {
		log.Infof("Push connection closed with code %d: %s", code, text)
		return nil
	})

	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return err
		}

		messageType, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("Unexpected websocket close: %v", err)
			}
			return err
		}
		if messageType != websocket.TextMessage {
			log.Debug("Ignoring binary push frame")
			continue
		}

		if err := s.handle(frame); err != nil {
			return err
		}
	}
}

func (s *session) write(frame []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

func (s *session) handle(frame []byte) error {
	packet, err := DecodePacket(frame)
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
		}).Warn("Skipping undecodable push frame")
		return nil
	}

	switch packet.Type {
	case EngineOpen:
		var open OpenPayload
		if err := json.Unmarshal(packet.Data, &open); err != nil {
			return fmt.Errorf("invalid open packet: %w", err)
		}
		if open.PingInterval > 0 && open.PingTimeout > 0 {
			s.readTimeout = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
		}
		log.WithFields(log.Fields{
			"sid":          open.SID,
			"pingInterval": open.PingInterval,
		}).Debug("Push transport opened")
		return s.write(ConnectPacket(s.namespace))
	case EnginePing:
		return s.write(PongPacket())
	case EngineClose:
		return ErrServerClosed
	case EngineMessage:
	default:
		return nil
	}

	if packet.Namespace != s.namespace {
		return nil
	}

	switch packet.SocketType {
	case SocketConnect:
		s.status.MarkConnected(s.endpoint)
		log.WithFields(log.Fields{
			"namespace": s.namespace,
		}).Info("Connected to push service")
	case SocketConnectError:
		log.WithFields(log.Fields{
			"namespace": s.namespace,
			"reason":    string(packet.Data),
		}).Error("Push connection error")
		return fmt.Errorf("connect_error: %s", packet.Data)
	case SocketDisconnect:
		log.Info("Disconnected from push service")
		return ErrServerClosed
	case SocketEvent:
		s.dispatch(packet)
	}

	return nil
}

func (s *session) dispatch(packet Packet) {
	kind := models.EventKind(packet.Event)
	switch kind {
	case models.InitialDocuments, models.UpdateDocuments:
		wsEvents.WithLabelValues(packet.Event).Inc()
		s.sink.ReplaceAll(kind, packet.Data)
	default:
		log.WithFields(log.Fields{
			"event": packet.Event,
		}).Debug("Ignoring push event")
	}
}
