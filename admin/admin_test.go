package admin_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/mroth/pushserver"
	"github.com/mroth/pushserver/admin"
)

func newServer(t *testing.T) *pushserver.Server {
	t.Helper()
	p, err := pushserver.New(pushserver.WithSweepInterval(0))
	if err != nil {
		t.Fatal(err)
	}
	s, err := pushserver.NewServer(p)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Shutdown()
		p.Shutdown()
	})
	return s
}

// it should serve a HTML index page
func TestAdminHTTPIndex(t *testing.T) {
	s := newServer(t)

	req, err := http.NewRequest("GET", "/admin/", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := admin.AdminHandler(s)
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}
}

// it should expose a REST JSON status API
func TestAdminHTTPStatusAPI(t *testing.T) {
	s := newServer(t)
	p := s.PushContext()
	p.TopicsContext().GetOrCreateTopic(pushserver.NewTopicKey("news"))
	if err := p.Subscribe("abc", pushserver.NewTopicKey("news")); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest("GET", "/admin/status.json", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := admin.AdminHandler(s)
	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	if ctype := rr.Header().Get("Content-Type"); ctype != "application/json" {
		t.Errorf("content type header does not match: got %v want %v",
			ctype, "application/json")
	}

	var status pushserver.ServerStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "OK" {
		t.Errorf("status: got %v want %v", status.Status, "OK")
	}
	if len(status.Sessions) != 1 || status.Sessions[0].ID != "abc" {
		t.Errorf("sessions: got %+v want one session abc", status.Sessions)
	}
	if len(status.Topics) != 1 || status.Topics[0].Subscribers != 1 {
		t.Errorf("topics: got %+v want news with 1 subscriber", status.Topics)
	}
}

func TestAdminHTTPSessionAPI(t *testing.T) {
	s := newServer(t)
	p := s.PushContext()
	news := pushserver.NewTopicKey("news")
	p.TopicsContext().GetOrCreateTopic(news)
	if err := p.Subscribe("abc", news); err != nil {
		t.Fatal(err)
	}
	if err := p.TopicsContext().Publish(news, "hello"); err != nil {
		t.Fatal(err)
	}

	var testcases = []struct {
		path         string
		expectStatus int
	}{
		{"/admin/sessions/abc.json", http.StatusOK},
		{"/admin/sessions/nope.json", http.StatusNotFound},
	}
	for _, tc := range testcases {
		req, err := http.NewRequest("GET", tc.path, nil)
		if err != nil {
			t.Fatal(err)
		}
		rr := httptest.NewRecorder()
		admin.AdminHandler(s).ServeHTTP(rr, req)
		if got, want := rr.Code, tc.expectStatus; got != want {
			t.Errorf("%v: got %v want %v", tc.path, got, want)
		}
		if rr.Code != http.StatusOK {
			continue
		}

		var report admin.SessionReport
		if err := json.Unmarshal(rr.Body.Bytes(), &report); err != nil {
			t.Fatal(err)
		}
		if report.ID != "abc" || report.Queued != 1 || report.State != "DETACHED" {
			t.Errorf("unexpected report: %+v", report)
		}
		if len(report.Topics) != 1 || report.Topics[0] != "news" {
			t.Errorf("topics: got %v want [news]", report.Topics)
		}
	}
}

func TestAdminHTTPTopicsAPI(t *testing.T) {
	s := newServer(t)
	tc := s.PushContext().TopicsContext()
	tc.GetOrCreateTopic(pushserver.NewTopicKey("news"))
	tc.GetOrCreateTopic(pushserver.TopicKey{Name: "pets", Subtopic: "cats"})
	tc.GetOrCreateTopic(pushserver.TopicKey{Name: "pets", Subtopic: "dogs"})

	req, err := http.NewRequest("GET", "/admin/topics.json", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	admin.AdminHandler(s).ServeHTTP(rr, req)
	if status := rr.Code; status != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v",
			status, http.StatusOK)
	}

	var tree map[string][]string
	if err := json.Unmarshal(rr.Body.Bytes(), &tree); err != nil {
		t.Fatal(err)
	}
	want := map[string][]string{
		"news": {"news"},
		"pets": {"cats@pets", "dogs@pets"},
	}
	if !reflect.DeepEqual(tree, want) {
		t.Errorf("topics: got %v want %v", tree, want)
	}
}
