package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TrialProgress is broadcast to subscribers of a time slot's allocation
// run as trials complete.
type TrialProgress struct {
	TimeSlotID string `json:"time_slot_id"`
	Trial      int    `json:"trial"`
	NTrials    int    `json:"n_trials"`
	BestLoss   int    `json:"best_loss"`
	Done       bool   `json:"done"`
}

// Client represents a WebSocket subscriber to one time slot's run.
type Client struct {
	TimeSlotID string
	Conn       *websocket.Conn
	Send       chan []byte
	Hub        *Hub
}

// Hub maintains active WebSocket connections and broadcasts trial
// progress to subscribers of a given time slot.
type Hub struct {
	clients     map[*Client]bool
	slotClients map[string][]*Client
	register    chan *Client
	unregister  chan *Client
	logger      *logrus.Logger
	mutex       sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		slotClients: make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		logger:      logger,
	}
}

// Run starts the hub and handles client registration/unregistration.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.slotClients[client.TimeSlotID] = append(h.slotClients[client.TimeSlotID], client)
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"time_slot_id":  client.TimeSlotID,
				"total_clients": len(h.clients),
			}).Info("websocket client connected")

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)

				slotClients := h.slotClients[client.TimeSlotID]
				for i, c := range slotClients {
					if c == client {
						h.slotClients[client.TimeSlotID] = append(slotClients[:i], slotClients[i+1:]...)
						break
					}
				}
				if len(h.slotClients[client.TimeSlotID]) == 0 {
					delete(h.slotClients, client.TimeSlotID)
				}
			}
			h.mutex.Unlock()

			h.logger.WithFields(logrus.Fields{
				"time_slot_id":  client.TimeSlotID,
				"total_clients": len(h.clients),
			}).Info("websocket client disconnected")
		}
	}
}

// HandleWebSocket upgrades a request into a subscriber of the named
// time slot's allocation progress.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	timeSlotID := c.Param("time_slot_id")
	if timeSlotID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing time_slot_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Error("failed to upgrade websocket connection")
		return
	}

	client := &Client{
		TimeSlotID: timeSlotID,
		Conn:       conn,
		Send:       make(chan []byte, 256),
		Hub:        h,
	}

	client.Hub.register <- client

	go client.writePump()
	go client.readPump()
}

// BroadcastProgress sends a trial-progress update to every subscriber
// of progress.TimeSlotID.
func (h *Hub) BroadcastProgress(progress TrialProgress) {
	h.mutex.RLock()
	clients := h.slotClients[progress.TimeSlotID]
	h.mutex.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(progress)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal trial progress")
		return
	}

	h.mutex.RLock()
	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			close(client.Send)
			delete(h.clients, client)
		}
	}
	h.mutex.RUnlock()
}

// GetConnectionCount returns the total number of active connections.
func (h *Hub) GetConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.WithError(err).Error("websocket error")
			}
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.Conn.Close()

	for message := range c.Send {
		if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
			c.Hub.logger.WithError(err).Error("failed to write websocket message")
			return
		}
	}
	c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}
