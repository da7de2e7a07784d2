package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"

	"github.com/desain-gratis/congestion/lib/notifier"
	"github.com/desain-gratis/congestion/lib/notifier/impl"
)

func newTestServer(t *testing.T, a *api) *httptest.Server {
	t.Helper()

	router := httprouter.New()
	router.GET("/stream", a.EventStream)
	router.GET("/ws", a.Websocket([]string{"*"}))

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func topicSubscribe(topic notifier.Topic) SubscribeFunc {
	return func(ctx context.Context) (notifier.Subscription, error) {
		subs, err := topic.Subscribe(ctx, impl.NewStandardSubscriber(8))
		if err != nil {
			return nil, err
		}
		err = subs.Publish(ctx, notifier.Event{Name: "hello", Data: []string{"a"}})
		return subs, err
	}
}

func waitSubscribers(t *testing.T, topic notifier.Topic, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(topic.Subscriptions()) == n
	}, 2*time.Second, 5*time.Millisecond)
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()

	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			return name, data
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStream(t *testing.T) {
	topic := impl.NewTopic()
	srv := newTestServer(t, NewStreamAPI(topicSubscribe(topic)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)

	name, data := readEvent(t, r)
	require.Equal(t, "hello", name)
	require.JSONEq(t, `["a"]`, data)

	waitSubscribers(t, topic, 1)
	delivered := impl.NewBroadcaster(topic).Broadcast(ctx, notifier.Event{Name: "congestion-update", Data: map[string]string{"area_nm": "A"}})
	require.Equal(t, 1, delivered)

	name, data = readEvent(t, r)
	require.Equal(t, "congestion-update", name)
	require.JSONEq(t, `{"area_nm":"A"}`, data)

	// client goes away: the subscription is removed
	cancel()
	waitSubscribers(t, topic, 0)
}

func TestEventStream_Heartbeat(t *testing.T) {
	topic := impl.NewTopic()
	srv := newTestServer(t, NewStreamAPI(topicSubscribe(topic)).WithHeartbeat(10*time.Millisecond))

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readEvent(t, r)

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, ": ping\n", line)
}

func TestEventStream_SubscribeFailure(t *testing.T) {
	failing := func(ctx context.Context) (notifier.Subscription, error) {
		return nil, impl.ErrQueueFull
	}
	srv := newTestServer(t, NewStreamAPI(failing))

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestWebsocket(t *testing.T) {
	topic := impl.NewTopic()
	srv := newTestServer(t, NewStreamAPI(topicSubscribe(topic)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	readFrame := func() notifier.Event {
		typ, payload, err := c.Read(ctx)
		require.NoError(t, err)
		require.Equal(t, websocket.MessageText, typ)

		var raw struct {
			Name string          `json:"event"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(payload, &raw))
		return notifier.Event{Name: raw.Name, Data: string(raw.Data)}
	}

	require.Equal(t, notifier.Event{Name: "hello", Data: `["a"]`}, readFrame())

	waitSubscribers(t, topic, 1)
	impl.NewBroadcaster(topic).Broadcast(ctx, notifier.Event{Name: "congestion-alert", Data: []int{1}})
	require.Equal(t, notifier.Event{Name: "congestion-alert", Data: `[1]`}, readFrame())

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	waitSubscribers(t, topic, 0)
}

func TestWebsocket_ClientMessagesDiscarded(t *testing.T) {
	topic := impl.NewTopic()
	srv := newTestServer(t, NewStreamAPI(topicSubscribe(topic)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	_, _, err = c.Read(ctx) // hello
	require.NoError(t, err)
	waitSubscribers(t, topic, 1)

	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte(`{"hi":"there"}`)))
	require.NoError(t, c.Write(ctx, websocket.MessageBinary, []byte{1, 2, 3}))

	// the connection stays open
	require.Never(t, func() bool {
		return len(topic.Subscriptions()) == 0
	}, 100*time.Millisecond, 5*time.Millisecond)

	require.Equal(t, 1, impl.NewBroadcaster(topic).Broadcast(ctx, notifier.Event{Name: "congestion-update", Data: []int{2}}))

	typ, payload, err := c.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	require.JSONEq(t, `{"event":"congestion-update","data":[2]}`, string(payload))
}

type staticMetric map[string]any

func (s staticMetric) GetMetric() any { return map[string]any(s) }

func TestMetrics(t *testing.T) {
	router := httprouter.New()
	router.GET("/metrics", Metrics(map[string]notifier.Metric{
		"topic":  impl.NewTopic(),
		"poller": staticMetric{"n_cycle": 2},
	}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"topic":{"n_subscription":0,"type":"standard_topic"},"poller":{"n_cycle":2}}`, rec.Body.String())
}
