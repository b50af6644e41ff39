package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/suite"

	checkinhandler "shepherd/internal/checkin/handler"
	"shepherd/internal/checkin/models"
	"shepherd/internal/checkin/service"
	"shepherd/internal/checkin/statemachine"
	"shepherd/internal/checkin/store/memory"
	"shepherd/internal/platform/middleware"
	"shepherd/internal/realtime/hub"
	id "shepherd/pkg/domain"
)

const signingKey = "router-test-signing-key"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RouterSuite exercises the whole HTTP surface against the real service and
// in-memory store.
type RouterSuite struct {
	suite.Suite
	store  *memory.Store
	server *httptest.Server
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.store = memory.New()

	h := hub.New()
	svc, err := service.New(s.store, statemachine.New(), service.WithNotifier(h))
	s.Require().NoError(err)

	router := NewRouter(Deps{
		CheckIn: checkinhandler.New(svc, discardLogger()),
		Hub:     h,
		Auth:    middleware.NewTokenValidator(signingKey),
		Logger:  discardLogger(),
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)

	s.store.PutChild(models.Child{
		ID:          "child-1",
		ParentID:    "parent-1",
		FirstName:   "Noah",
		DateOfBirth: time.Now().AddDate(-6, 0, -10),
		Status:      id.StatusNotInService,
	})
	s.store.PutService(models.KidsService{
		ID:                  "svc-1",
		Name:                "Sprouts",
		MinAge:              5,
		MaxAge:              10,
		MaxCapacity:         10,
		IsAcceptingCheckIns: true,
		StaffIDs:            []id.StaffID{"staff-1"},
	})
}

func (s *RouterSuite) token(subject, role string) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(signingKey))
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) request(method, path, token string, body any) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, s.server.URL+path, &buf)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, out any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(out))
}

func (s *RouterSuite) TestCheckIn_EndToEnd() {
	resp := s.request(http.MethodPost, "/check-ins", s.token("parent-1", "parent"),
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Child   models.Child         `json:"child"`
		Service models.KidsService   `json:"service"`
		Record  models.CheckInRecord `json:"record"`
	}
	s.decode(resp, &body)
	s.Equal(id.StatusCheckedIn, body.Child.Status)
	s.Equal(1, body.Service.CurrentCapacity)
	s.Equal(id.ActorID("parent-1"), body.Record.CheckedInBy)
}

func (s *RouterSuite) TestCheckIn_RejectionStatusCodes() {
	svc, _ := s.store.GetServiceByID(context.Background(), "svc-1")
	svc.CurrentCapacity = svc.MaxCapacity
	s.store.PutService(svc)

	resp := s.request(http.MethodPost, "/check-ins", s.token("parent-1", "parent"),
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]string
	s.decode(resp, &body)
	s.Equal("service_at_capacity", body["error"])
	s.NotEmpty(body["error_description"])
}

func (s *RouterSuite) TestCheckIn_UnknownChildIs404() {
	resp := s.request(http.MethodPost, "/check-ins", s.token("staff-1", "staff"),
		map[string]string{"childId": "ghost", "serviceId": "svc-1"})
	resp.Body.Close()
	s.Equal(http.StatusNotFound, resp.StatusCode)
}

func (s *RouterSuite) TestCheckIn_MalformedBody() {
	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/check-ins",
		strings.NewReader("{not json"))
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+s.token("parent-1", "parent"))
	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *RouterSuite) TestAuthRequired() {
	resp := s.request(http.MethodPost, "/check-ins", "",
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.request(http.MethodPost, "/check-ins", "not-a-token",
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestCheckOut_EndToEnd() {
	resp := s.request(http.MethodPost, "/check-ins", s.token("parent-1", "parent"),
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	// A staff member releases the child the parent checked in.
	resp = s.request(http.MethodPost, "/check-outs", s.token("staff-1", "staff"),
		map[string]string{"childId": "child-1", "notes": "picked up by grandma"})
	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Child  models.Child         `json:"child"`
		Record models.CheckInRecord `json:"record"`
	}
	s.decode(resp, &body)
	s.Equal(id.StatusCheckedOut, body.Child.Status)
	s.Equal(id.ActorID("staff-1"), body.Record.CheckedOutBy)
}

func (s *RouterSuite) TestCheckOut_NotCheckedInIs409() {
	resp := s.request(http.MethodPost, "/check-outs", s.token("parent-1", "parent"),
		map[string]string{"childId": "child-1"})
	resp.Body.Close()
	s.Equal(http.StatusConflict, resp.StatusCode)
}

func (s *RouterSuite) TestEligibleServices() {
	resp := s.request(http.MethodGet, "/children/child-1/eligible-services",
		s.token("parent-1", "parent"), nil)
	s.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Services []models.EligibleService `json:"services"`
	}
	s.decode(resp, &body)
	s.Require().Len(body.Services, 1)
	s.Equal(id.ServiceID("svc-1"), body.Services[0].Service.ID)
	s.True(body.Services[0].IsRecommended, "10 open spots is a recommendation")
}

func (s *RouterSuite) TestHealthz() {
	resp := s.request(http.MethodGet, "/healthz", "", nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *RouterSuite) TestMetricsExposed() {
	resp := s.request(http.MethodGet, "/metrics", "", nil)
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

// A websocket subscriber sees the transition a parallel HTTP check-in
// produces, end to end through the hub.
func (s *RouterSuite) TestRealtime_BroadcastsCheckIn() {
	wsURL := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/realtime"
	header := http.Header{"Authorization": {"Bearer " + s.token("kiosk-1", "staff")}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	s.Require().NoError(err)
	defer conn.Close()

	// connection_established
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	s.Require().NoError(err)
	var frame map[string]any
	s.Require().NoError(json.Unmarshal(raw, &frame))
	s.Equal("connection_established", frame["type"])

	s.Require().NoError(conn.WriteJSON(map[string]string{
		"type": "subscribe_child", "childId": "child-1",
	}))
	// The subscription control is processed asynchronously; give the hub a
	// moment before triggering the transition.
	time.Sleep(200 * time.Millisecond)

	resp := s.request(http.MethodPost, "/check-ins", s.token("parent-1", "parent"),
		map[string]string{"childId": "child-1", "serviceId": "svc-1"})
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	types := map[string]bool{}
	for i := 0; i < 2; i++ {
		s.Require().NoError(conn.SetReadDeadline(time.Now().Add(3 * time.Second)))
		_, raw, err = conn.ReadMessage()
		s.Require().NoError(err)
		s.Require().NoError(json.Unmarshal(raw, &frame))
		types[frame["type"].(string)] = true
	}
	s.True(types["child_status_update"])
	s.True(types["check_in_update"])
}
