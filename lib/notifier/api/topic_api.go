package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/congestion/lib/notifier"
)

var (
	ErrWriteTimeout = errors.New("write timeout")
)

const defaultWriteTimeout = 10 * time.Second

// SubscribeFunc registers a new subscription bound to ctx.
// The subscription ends when ctx is done.
type SubscribeFunc func(ctx context.Context) (notifier.Subscription, error)

type api struct {
	subscribe    SubscribeFunc
	heartbeat    time.Duration
	writeTimeout time.Duration
}

// NewStreamAPI serves the events of subscriptions created by subscribe,
// either as server-sent events or over a websocket.
func NewStreamAPI(subscribe SubscribeFunc) *api {
	return &api{
		subscribe:    subscribe,
		writeTimeout: defaultWriteTimeout,
	}
}

// WithHeartbeat sends an SSE comment every d so idle proxies keep the stream open
func (a *api) WithHeartbeat(d time.Duration) *api {
	a.heartbeat = d
	return a
}

// EventStream streams every event as
//
//	event: <name>
//	data: <json>
//
// until the client goes away. A failed write ends the subscription.
// NOTE: Chrome reuses an open stream for the same URL; add a random query param to open several.
func (a *api) EventStream(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	subs, err := a.subscribe(r.Context())
	if err != nil {
		log.Warn().Err(err).Msgf("event stream: failed to subscribe")
		http.Error(w, "failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer subs.Close(nil)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var heartbeat <-chan time.Time
	if a.heartbeat > 0 {
		ticker := time.NewTicker(a.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case event, ok := <-subs.Listen():
			if !ok {
				return
			}
			if err := writeEvent(w, event); err != nil {
				log.Debug().Err(err).Msgf("event stream: write failed for %v", subs.ID())
				subs.Close(err)
				return
			}
		case <-heartbeat:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				subs.Close(err)
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w io.Writer, event notifier.Event) error {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Name, payload)
	return err
}

// Websocket streams every event as a text frame {"event": name, "data": payload}.
// Messages sent by the client are read and discarded.
//
// originPatterns:
//
//	[]string{"localhost:*", "*.desain.gratis"}
func (a *api) Websocket(originPatterns []string) func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			log.Error().Msgf("error accept %v", err)
			return
		}
		defer c.CloseNow()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// drains client messages until the client goes away
		go func() {
			defer cancel()
			for {
				if _, _, err := c.Read(ctx); err != nil {
					return
				}
			}
		}()

		subs, err := a.subscribe(ctx)
		if err != nil {
			log.Warn().Err(err).Msgf("websocket: failed to subscribe")
			c.Close(websocket.StatusTryAgainLater, "failed to subscribe")
			return
		}
		defer subs.Close(nil)

		for event := range subs.Listen() {
			err = a.publishToWebsocket(ctx, c, event)
			if err != nil {
				subs.Close(err)
				if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
					log.Debug().Err(err).Msgf("websocket: write failed for %v", subs.ID())
				}
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		err = c.Close(websocket.StatusNormalClosure, "subscription ended")
		if err != nil && websocket.CloseStatus(err) == -1 {
			log.Err(err).Msgf("failed to close websocket connection normally")
			return
		}

		log.Debug().Msgf("websocket connection closed")
	}
}

func (a *api) publishToWebsocket(ctx context.Context, wsconn *websocket.Conn, event notifier.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, a.writeTimeout, ErrWriteTimeout)
	defer cancel()

	return wsconn.Write(ctx, websocket.MessageText, payload)
}

// Metrics serves the merged metrics of every source, keyed by name
func Metrics(sources map[string]notifier.Metric) func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		result := make(map[string]any, len(sources))
		for name, source := range sources {
			result[name] = source.GetMetric()
		}

		payload, err := json.Marshal(result)
		if err != nil {
			http.Error(w, "failed to parse metric", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}
