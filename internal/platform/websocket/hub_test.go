package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medappt/scheduler/internal/platform/auth"
	"github.com/medappt/scheduler/internal/platform/notification"
)

func testMessage(doctorID, patientID uuid.UUID) notification.Message {
	evt := notification.NewEvent(notification.BookingCreated, uuid.New(), doctorID, patientID, nil)
	return notification.Message{Event: evt, Subject: "Appointment booked"}
}

func TestTopicFor(t *testing.T) {
	id := uuid.New()
	if got := TopicFor(auth.Principal{ID: id, Role: auth.RoleAdmin}); got != adminTopic {
		t.Errorf("expected admin topic, got %q", got)
	}
	if got := TopicFor(auth.Principal{ID: id, Role: auth.RoleDoctor}); got != "doctor:"+id.String() {
		t.Errorf("unexpected doctor topic %q", got)
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newClient(auth.Principal{ID: uuid.New(), Role: auth.RolePatient})

	hub.Register(c)
	if hub.ClientCount() != 1 || hub.TopicCount(c.Topic) != 1 {
		t.Fatalf("expected one registered client, got %d", hub.ClientCount())
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
	if _, ok := <-c.Send; ok {
		t.Error("expected send channel to be closed")
	}
}

func TestHub_SendReachesOnlyParties(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	doctorID, patientID := uuid.New(), uuid.New()

	doctor := newClient(auth.Principal{ID: doctorID, Role: auth.RoleDoctor})
	patient := newClient(auth.Principal{ID: patientID, Role: auth.RolePatient})
	admin := newClient(auth.Principal{ID: uuid.New(), Role: auth.RoleAdmin})
	stranger := newClient(auth.Principal{ID: uuid.New(), Role: auth.RolePatient})
	// A patient id that happens to equal the doctor id is a different topic.
	sameIDPatient := newClient(auth.Principal{ID: doctorID, Role: auth.RolePatient})
	for _, c := range []*Client{doctor, patient, admin, stranger, sameIDPatient} {
		hub.Register(c)
	}

	if err := hub.Send(context.Background(), testMessage(doctorID, patientID)); err != nil {
		t.Fatalf("send: %v", err)
	}

	for name, c := range map[string]*Client{"doctor": doctor, "patient": patient, "admin": admin} {
		select {
		case data := <-c.Send:
			var msg notification.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("%s: decode: %v", name, err)
			}
			if msg.Event.Kind != notification.BookingCreated {
				t.Errorf("%s: unexpected kind %q", name, msg.Event.Kind)
			}
		default:
			t.Errorf("%s: expected a message", name)
		}
	}
	for name, c := range map[string]*Client{"stranger": stranger, "same id patient": sameIDPatient} {
		select {
		case <-c.Send:
			t.Errorf("%s: must not receive the event", name)
		default:
		}
	}
}

func TestHub_SendSkipsFullBuffer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	doctorID := uuid.New()
	c := &Client{ID: "slow", Topic: TopicFor(auth.Principal{ID: doctorID, Role: auth.RoleDoctor}), Send: make(chan []byte, 1)}
	hub.Register(c)

	msg := testMessage(doctorID, uuid.New())
	for i := 0; i < 3; i++ {
		if err := hub.Send(context.Background(), msg); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if len(c.Send) != 1 {
		t.Errorf("expected buffer to hold 1 message, got %d", len(c.Send))
	}
}

func TestHandler_RequiresPrincipal(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop()), nil)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.Connect(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
}

func TestHandler_FeedOverDialer(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	e := echo.New()
	g := e.Group("/events", auth.DevAuthMiddleware(nil))
	NewHandler(hub, nil).RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()

	doctorID := uuid.New()
	header := http.Header{}
	header.Set(auth.DevUserHeader, doctorID.String())
	header.Set(auth.DevRoleHeader, string(auth.RoleDoctor))

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/ws"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	topic := TopicFor(auth.Principal{ID: doctorID, Role: auth.RoleDoctor})
	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(topic) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := hub.Send(context.Background(), testMessage(doctorID, uuid.New())); err != nil {
		t.Fatalf("send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got notification.Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Event.DoctorID != doctorID {
		t.Errorf("expected event for %s, got %s", doctorID, got.Event.DoctorID)
	}
}

func TestHandler_RejectsForeignOrigin(t *testing.T) {
	e := echo.New()
	g := e.Group("", auth.DevAuthMiddleware(nil))
	NewHandler(NewHub(zerolog.Nop()), []string{"https://clinic.example"}).RegisterRoutes(g)

	server := httptest.NewServer(e)
	defer server.Close()

	header := http.Header{}
	header.Set(auth.DevUserHeader, uuid.New().String())
	header.Set("Origin", "https://evil.example")

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 response, got %v", resp)
	}
}
