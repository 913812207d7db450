package audit

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/model"
)

const storeTimeout = 5 * time.Second

type Event struct {
	Type         model.AuditEventType
	PCID         string
	SmartphoneID string
	ChallengeID  string
	IP           string
	Details      map[string]any
}

// Store persists audit events. repository.AuditEventRepository satisfies it.
type Store interface {
	Create(ctx context.Context, event model.AuditEvent) error
}

type Logger struct {
	store Store
}

// NewLogger returns a Logger that always writes to zerolog and, when store is
// non-nil, also persists each event.
func NewLogger(store Store) *Logger {
	return &Logger{store: store}
}

func (l *Logger) Log(ctx context.Context, event Event) {
	if event.IP == "" {
		event.IP = ClientIPFromContext(ctx)
	}

	logger := log.With().
		Str("audit", "rendezvous").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.PCID != "" {
		logger = logger.With().Str("pc_id", event.PCID).Logger()
	}
	if event.SmartphoneID != "" {
		logger = logger.With().Str("smartphone_id", event.SmartphoneID).Logger()
	}
	if event.ChallengeID != "" {
		logger = logger.With().Str("challenge_id", event.ChallengeID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("audit event")

	if l == nil || l.store == nil {
		return
	}

	record := toRecord(event)
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := l.store.Create(storeCtx, record); err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type)).Msg("failed to persist audit event")
	}
}

func toRecord(event Event) model.AuditEvent {
	record := model.AuditEvent{
		ID:           uuid.NewString(),
		Type:         event.Type,
		PCID:         optional(event.PCID),
		SmartphoneID: optional(event.SmartphoneID),
		ChallengeID:  optional(event.ChallengeID),
		IP:           optional(event.IP),
		CreatedAt:    time.Now(),
	}
	if len(event.Details) > 0 {
		if data, err := json.Marshal(event.Details); err == nil {
			record.Details = data
		}
	}
	return record
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func addField(e *zerolog.Event, key string, value any) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	case time.Duration:
		return e.Dur(key, v)
	default:
		return e.Interface(key, v)
	}
}

// ClientIP prefers proxy headers, then the host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
