package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/service"
	"github.com/openclaw/rendezvous-server-go/internal/sse"
)

// EventsHandler streams challenge events to a smartphone so it does not have
// to poll /2fa/pull.
type EventsHandler struct {
	broker           *sse.Broker
	challengeService *service.ChallengeService
}

func NewEventsHandler(broker *sse.Broker, challengeService *service.ChallengeService) *EventsHandler {
	return &EventsHandler{
		broker:           broker,
		challengeService: challengeService,
	}
}

// GET /2fa/events
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields, err := parseRequestFields(r)
	if err != nil {
		writeError(w, err)
		return
	}
	smartphoneID := fields.SmartphoneID

	if err := h.challengeService.CheckSmartphone(smartphoneID); err != nil {
		writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := h.broker.Subscribe(smartphoneID)
	defer h.broker.Unsubscribe(client)

	log.Info().
		Str("smartphoneId", smartphoneID).
		Int("streams", h.broker.ClientCount(smartphoneID)).
		Msg("sse connection established")

	ctx := r.Context()

	if err := h.sendEvent(w, flusher, "connected", map[string]any{
		"smartphoneId": smartphoneID,
	}); err != nil {
		return
	}

	// Subscribed first, so a push racing this lookup is still delivered.
	if pending := h.challengeService.PendingEvent(smartphoneID); pending != nil {
		if err := h.sendEvent(w, flusher, service.ChallengeEventType, pending); err != nil {
			log.Error().Err(err).Msg("failed to send pending challenge")
			return
		}
	}

	heartbeat := time.NewTicker(sse.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().
				Str("smartphoneId", smartphoneID).
				Msg("sse connection closed by client")
			return

		case <-client.Done:
			log.Info().
				Str("smartphoneId", smartphoneID).
				Msg("sse connection closed by broker")
			return

		case event := <-client.Events:
			if err := h.sendRawEvent(w, flusher, event); err != nil {
				log.Error().Err(err).Msg("failed to send event")
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
				log.Debug().
					Str("smartphoneId", smartphoneID).
					Msg("heartbeat failed, closing connection")
				return
			}
			flusher.Flush()
		}
	}
}

func (h *EventsHandler) sendEvent(w http.ResponseWriter, flusher http.Flusher, eventType string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	return h.sendRawEvent(w, flusher, sse.Event{Type: eventType, Data: jsonData})
}

func (h *EventsHandler) sendRawEvent(w http.ResponseWriter, flusher http.Flusher, event sse.Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", event.Data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
