package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSince(t *testing.T) {
	bus := NewBus(3)
	bus.Publish(Event{Type: TypeState, Message: "1"})
	bus.Publish(Event{Type: TypeState, Message: "2"})
	bus.Publish(Event{Type: TypeState, Message: "3"})

	events := bus.Since(1)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Seq)
	assert.Equal(t, int64(3), events[1].Seq)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestBusCapsHistory(t *testing.T) {
	bus := NewBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	require.Len(t, events, 2)
	assert.Equal(t, "2", events[0].Message)
	assert.Equal(t, "3", events[1].Message)
	assert.Equal(t, int64(3), bus.LastSeq())
}

func TestBusWaitClosedOnPublish(t *testing.T) {
	bus := NewBus(10)
	wake := bus.Wait()

	select {
	case <-wake:
		t.Fatal("wait channel closed before publish")
	default:
	}

	bus.Publish(Event{Message: "x"})

	select {
	case <-wake:
	case <-time.After(time.Second):
		t.Fatal("wait channel not closed by publish")
	}
}

func TestHandler_StreamsBacklogAndLiveEvents(t *testing.T) {
	bus := NewBus(10)
	bus.Publish(Event{Source: SourceJobs, Message: "old"})
	bus.Publish(Event{Source: SourceJobs, Message: "backlog"})

	server := httptest.NewServer(Handler(bus))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?since=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "backlog", first.Message)
	assert.Equal(t, int64(2), first.Seq)

	bus.Publish(Event{Source: SourceUpload, Type: TypeProgress, Progress: 40})

	var live Event
	require.NoError(t, conn.ReadJSON(&live))
	assert.Equal(t, SourceUpload, live.Source)
	assert.Equal(t, 40, live.Progress)
}

func TestHandler_RejectsBadSince(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewBus(1))(rec, httptest.NewRequest(http.MethodGet, "/events?since=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_PlainRequestIsNotUpgraded(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(NewBus(1))(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
