package mock

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
)

// JSONAPIServerConfig configures a paged JSON:API collection endpoint.
type JSONAPIServerConfig struct {
	// Path is the collection path. Defaults to "/v2/nodes/".
	Path string

	// ResourceType is the JSON:API type of every item. Defaults to "nodes".
	ResourceType string

	// PageSizes lists how many items each page holds. The last page has no
	// links.next.
	PageSizes []int

	// FailPage, when non-zero, makes the 1-based page FailPage answer with
	// FailStatus and a JSON:API error document.
	FailPage   int
	FailStatus int

	// TotalInLinksMeta reports the total under links.meta instead of meta.
	TotalInLinksMeta bool
}

// JSONAPIServer serves a paged collection whose links.next are absolute URLs,
// the way OSF does. Items are numbered item-1 .. item-N across pages.
type JSONAPIServer struct {
	config JSONAPIServerConfig
	server *httptest.Server

	requests atomic.Int32

	mu          sync.Mutex
	authHeaders []string
}

// NewJSONAPIServer starts the server. Call Close when done.
func NewJSONAPIServer(config JSONAPIServerConfig) *JSONAPIServer {
	if config.Path == "" {
		config.Path = "/v2/nodes/"
	}
	if config.ResourceType == "" {
		config.ResourceType = "nodes"
	}
	if config.FailStatus == 0 {
		config.FailStatus = http.StatusInternalServerError
	}

	s := &JSONAPIServer{config: config}
	mux := http.NewServeMux()
	mux.HandleFunc(config.Path, s.handleCollection)
	s.server = httptest.NewServer(mux)
	return s
}

// URL is the server base URL.
func (s *JSONAPIServer) URL() string {
	return s.server.URL
}

// CollectionURL is the absolute URL of the first page.
func (s *JSONAPIServer) CollectionURL() string {
	return s.server.URL + s.config.Path
}

// Client returns an HTTP client configured for the server.
func (s *JSONAPIServer) Client() *http.Client {
	return s.server.Client()
}

// Close shuts the server down.
func (s *JSONAPIServer) Close() {
	s.server.Close()
}

// Requests is the number of page requests served.
func (s *JSONAPIServer) Requests() int {
	return int(s.requests.Load())
}

// AuthorizationHeaders returns the Authorization header of every request, in
// arrival order.
func (s *JSONAPIServer) AuthorizationHeaders() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.authHeaders...)
}

// Total is the number of items across all pages.
func (s *JSONAPIServer) Total() int {
	total := 0
	for _, n := range s.config.PageSizes {
		total += n
	}
	return total
}

func (s *JSONAPIServer) handleCollection(w http.ResponseWriter, r *http.Request) {
	s.requests.Add(1)

	s.mu.Lock()
	s.authHeaders = append(s.authHeaders, r.Header.Get("Authorization"))
	s.mu.Unlock()

	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 || n > len(s.config.PageSizes) {
			writeJSONAPIError(w, http.StatusNotFound, "Page not found.")
			return
		}
		page = n
	}

	if page == s.config.FailPage {
		writeJSONAPIError(w, s.config.FailStatus, fmt.Sprintf("page %d unavailable", page))
		return
	}

	offset := 0
	for _, n := range s.config.PageSizes[:page-1] {
		offset += n
	}

	data := make([]map[string]interface{}, 0)
	if len(s.config.PageSizes) > 0 {
		for i := 1; i <= s.config.PageSizes[page-1]; i++ {
			id := fmt.Sprintf("item-%d", offset+i)
			data = append(data, map[string]interface{}{
				"id":   id,
				"type": s.config.ResourceType,
				"attributes": map[string]interface{}{
					"title":    fmt.Sprintf("Item %d", offset+i),
					"position": offset + i,
				},
				"links": map[string]interface{}{
					"self": s.CollectionURL() + id + "/",
				},
			})
		}
	}

	var next interface{}
	if page < len(s.config.PageSizes) {
		next = fmt.Sprintf("%s?page=%d", s.CollectionURL(), page+1)
	}

	links := map[string]interface{}{
		"self": fmt.Sprintf("%s?page=%d", s.CollectionURL(), page),
		"next": next,
	}
	doc := map[string]interface{}{
		"data":  data,
		"links": links,
	}
	if s.config.TotalInLinksMeta {
		links["meta"] = map[string]interface{}{"total": s.Total()}
	} else {
		doc["meta"] = map[string]interface{}{"total": s.Total()}
	}

	w.Header().Set("Content-Type", "application/vnd.api+json")
	_ = json.NewEncoder(w).Encode(doc)
}

func writeJSONAPIError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/vnd.api+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]string{{"detail": detail}},
	})
}
