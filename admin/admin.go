// Package admin provides the HTML/JSON monitoring endpoints for pushserver.
package admin

import (
	"encoding/json"
	"fmt"
	"net/http"

	rice "github.com/GeertJohan/go.rice"
	"github.com/gorilla/mux"
	"github.com/mroth/pushserver"
)

// SessionReport is the JSON document served for a single session.
type SessionReport struct {
	pushserver.SessionStatus
	Topics []string `json:"topics"`
}

// Handles serving the static HTML page
func adminStatusHTMLHandler(w http.ResponseWriter, r *http.Request) {
	// kinda ridiculous workaround for serving a single static file, sigh.
	box, err := rice.FindBox("views")
	if err != nil {
		http.Error(w, fmt.Sprintf("error opening rice.Box: %s", err), http.StatusInternalServerError)
		return
	}

	file, err := box.Open("admin.html")
	if err != nil {
		http.Error(w, fmt.Sprintf("could not open file: %s", err), http.StatusInternalServerError)
		return
	}
	defer file.Close()

	fstat, err := file.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("could not stat file: %s", err), http.StatusInternalServerError)
		return
	}

	http.ServeContent(w, r, fstat.Name(), fstat.ModTime(), file)
}

// Handles serving the JSON status data, effectively the admin API endpoint
func adminStatusDataHandler(w http.ResponseWriter, r *http.Request, s *pushserver.Server) {
	writeJSON(w, s.Status())
}

// Handles serving the state of one session, including a detached one still
// waiting out its grace period.
func adminSessionHandler(w http.ResponseWriter, r *http.Request, p *pushserver.PushContext) {
	id := mux.Vars(r)["id"]
	sess, ok := p.SessionManager().GetPushSession(id)
	if !ok {
		http.Error(w, "404 unknown session", http.StatusNotFound)
		return
	}

	report := SessionReport{SessionStatus: sess.Status(), Topics: []string{}}
	for _, key := range p.TopicsContext().SubscribedTopics(id) {
		report.Topics = append(report.Topics, key.String())
	}
	writeJSON(w, report)
}

// Handles serving the topic tree: each topic name with the keys registered
// under it.
func adminTopicsHandler(w http.ResponseWriter, r *http.Request, p *pushserver.PushContext) {
	tc := p.TopicsContext()
	tree := make(map[string][]string)
	for _, name := range tc.Names() {
		keys := []string{}
		for _, key := range tc.Subtopics(name) {
			keys = append(keys, key.String())
		}
		tree[name] = keys
	}
	writeJSON(w, tree)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(b)
}

// AdminHandler returns the admin endpoints for s, mounted under /admin/.
func AdminHandler(s *pushserver.Server) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/admin/", adminStatusHTMLHandler).Methods(http.MethodGet)
	r.HandleFunc("/admin/status.json", func(w http.ResponseWriter, r *http.Request) {
		adminStatusDataHandler(w, r, s)
	}).Methods(http.MethodGet)
	r.HandleFunc("/admin/topics.json", func(w http.ResponseWriter, r *http.Request) {
		adminTopicsHandler(w, r, s.PushContext())
	}).Methods(http.MethodGet)
	r.HandleFunc("/admin/sessions/{id}.json", func(w http.ResponseWriter, r *http.Request) {
		adminSessionHandler(w, r, s.PushContext())
	}).Methods(http.MethodGet)
	return r
}
