package websocket

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"RecipeSwipe/internal/domain"
	"RecipeSwipe/internal/logging"
)

const writeTimeout = 5 * time.Second

// Message is the envelope pushed to clients.
type Message struct {
	Type string             `json:"type"`
	Job  *domain.UploadJob  `json:"job,omitempty"`
	Jobs []domain.UploadJob `json:"jobs,omitempty"`
}

// JobLister returns the current job list sent to new clients.
type JobLister func() []domain.UploadJob

// Hub fans upload job updates out to websocket clients.
type Hub struct {
	list     JobLister
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	// writes to a gorilla connection must be serialised.
	mu sync.Mutex
}

// NewHub creates a hub. list may be nil.
func NewHub(list JobLister, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		list:   list,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the connection and sends the full job list.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "clients", total)

	if h.list != nil {
		listed := h.list()
		jobs := make([]domain.UploadJob, 0, len(listed))
		for _, job := range listed {
			jobs = append(jobs, withoutPayloads(job))
		}
		if err := h.send(c, Message{Type: "jobs", Jobs: jobs}); err != nil {
			h.drop(c)
			return
		}
	}

	go func() {
		defer h.drop(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Publish pushes one job update to every client. Clients that fail to
// receive it are dropped.
func (h *Hub) Publish(job domain.UploadJob) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	job = withoutPayloads(job)
	msg := Message{Type: "job", Job: &job}
	for _, c := range clients {
		if err := h.send(c, msg); err != nil {
			h.logger.Debug("websocket send failed", "error", err)
			h.drop(c)
		}
	}
}

// withoutPayloads drops the base64 file data; clients only need the file
// metadata to render progress.
func withoutPayloads(job domain.UploadJob) domain.UploadJob {
	files := make([]domain.UploadFile, len(job.Files))
	for i, f := range job.Files {
		files[i] = domain.UploadFile{Type: f.Type, URI: f.URI}
	}
	job.Files = files
	return job
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()
	for c := range clients {
		_ = c.conn.Close()
	}
}

func (h *Hub) send(c *client, msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(msg)
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
		h.logger.Info("websocket client disconnected", "clients", total)
	}
}
