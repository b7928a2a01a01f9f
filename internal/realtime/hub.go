package realtime

import (
	"context"
	"log"

	"careconnect/internal/events"
)

// Hub owns the set of active clients, the per-conversation rooms, and the
// presence registry. All state mutations happen inside the Run loop, so no
// locking is needed beyond what the injected registry does internally.
type Hub struct {
	presence PresenceRegistry

	// Registered clients.
	clients map[*Client]bool

	// Rooms keyed by conversation id, and the reverse index used to clean a
	// client out of its rooms on disconnect.
	rooms       map[uint]map[*Client]bool
	memberships map[*Client]map[uint]bool

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	deliveries chan delivery
}

type joinRequest struct {
	client         *Client
	conversationID uint
}

type delivery struct {
	conversationID uint
	targets        []uint
	event          events.Event
}

// NewHub creates a new Hub around the given presence registry.
func NewHub(presence PresenceRegistry) *Hub {
	return &Hub{
		presence:    presence,
		clients:     make(map[*Client]bool),
		rooms:       make(map[uint]map[*Client]bool),
		memberships: make(map[*Client]map[uint]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		join:        make(chan joinRequest),
		deliveries:  make(chan delivery, 256),
	}
}

// Dispatch routes an event to the conversation room and directly to any
// target user's handles not currently in that room. Non-blocking: when the
// hub's queue is full the event is dropped, never the durable operation
// behind it.
func (h *Hub) Dispatch(conversationID uint, targets []uint, ev events.Event) {
	select {
	case h.deliveries <- delivery{conversationID: conversationID, targets: targets, event: ev}:
	default:
		log.Printf("Warning: hub delivery queue is full, dropping %s event for conversation %d", ev.Type, conversationID)
	}
}

// Notify implements services.Notifier for the gateway-local path, so the
// chat service emits events the same way regardless of transport.
func (h *Hub) Notify(ctx context.Context, conversationID uint, targets []uint, ev events.Event) error {
	h.Dispatch(conversationID, targets, ev)
	return nil
}

// Join adds the client's socket to the room named by the conversation id.
// Participant checks happen at the data layer for mutating operations; a
// joined socket only ever receives fan-out.
func (h *Hub) Join(client *Client, conversationID uint) {
	h.join <- joinRequest{client: client, conversationID: conversationID}
}

// Run starts the hub loop.
func (h *Hub) Run() {
	log.Println("Realtime hub loop started.")
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.presence.Register(client.UserID(), client)
			log.Printf("Client registered: user %d, handle %s", client.UserID(), client.ID())
			h.broadcastOnlineUsers()

		case client := <-h.unregister:
			if !h.clients[client] {
				continue // already replaced or never registered
			}
			h.drop(client)
			log.Printf("Client unregistered: user %d, handle %s", client.UserID(), client.ID())
			h.broadcastOnlineUsers()

		case req := <-h.join:
			if !h.clients[req.client] {
				continue
			}
			room, ok := h.rooms[req.conversationID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[req.conversationID] = room
			}
			room[req.client] = true
			member, ok := h.memberships[req.client]
			if !ok {
				member = make(map[uint]bool)
				h.memberships[req.client] = member
			}
			member[req.conversationID] = true

		case d := <-h.deliveries:
			h.fanOut(d)
		}
	}
}

// fanOut delivers one event: to the room, then directly to each target
// user's handles that are not in the room. account_terminated additionally
// closes every handle of the target after delivery.
func (h *Hub) fanOut(d delivery) {
	payload, err := d.event.Encode()
	if err != nil {
		log.Printf("Failed to encode %s event: %v", d.event.Type, err)
		return
	}

	inRoom := make(map[string]bool)
	if d.conversationID != 0 {
		for client := range h.rooms[d.conversationID] {
			inRoom[client.ID()] = true
			h.deliverTo(client, payload)
		}
	}

	for _, userID := range d.targets {
		for _, handle := range h.presence.HandlesFor(userID) {
			if inRoom[handle.ID()] {
				continue
			}
			client, ok := handle.(*Client)
			if !ok {
				handle.Deliver(payload)
				continue
			}
			h.deliverTo(client, payload)
		}
	}

	if d.event.Type == events.AccountTerminated {
		for _, userID := range d.targets {
			for _, handle := range h.presence.HandlesFor(userID) {
				if client, ok := handle.(*Client); ok {
					h.drop(client)
					client.Terminate()
				}
			}
		}
		h.broadcastOnlineUsers()
	}
}

// deliverTo sends to one client; a full or closed buffer means the client is
// slow or gone, so it is dropped.
func (h *Hub) deliverTo(client *Client, payload []byte) {
	if client.Deliver(payload) {
		return
	}
	log.Printf("Warning: send buffer of user %d handle %s is full or closed, dropping client.", client.UserID(), client.ID())
	h.drop(client)
}

// drop removes a client from the hub, its rooms, and the presence registry,
// and closes its send channel.
func (h *Hub) drop(client *Client) {
	if !h.clients[client] {
		return
	}
	delete(h.clients, client)
	for conversationID := range h.memberships[client] {
		if room, ok := h.rooms[conversationID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, conversationID)
			}
		}
	}
	delete(h.memberships, client)
	h.presence.Unregister(client.UserID(), client)
	client.closeSend()
}

// broadcastOnlineUsers pushes the presence snapshot to every client.
func (h *Hub) broadcastOnlineUsers() {
	ev, err := events.New(events.OnlineUsers, events.OnlineUsersPayload{Users: h.presence.OnlineUsers()})
	if err != nil {
		log.Printf("Failed to encode online_users event: %v", err)
		return
	}
	payload, err := ev.Encode()
	if err != nil {
		log.Printf("Failed to encode online_users event: %v", err)
		return
	}
	for client := range h.clients {
		h.deliverTo(client, payload)
	}
}
