package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/driftdesk/pkg/wallet"
)

// ChannelAccounts carries AccountsUpdate messages
const ChannelAccounts = "accounts"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins (CORS handled by main server)
		return true
	},
}

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// onLeave runs after a client is removed
	onLeave func(*Client)

	// done is closed when Run returns
	done chan struct{}

	mu     sync.RWMutex
	logger *zap.SugaredLogger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				client.closeBridge()
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Infow("ws_client_connected", "client", client.id, "wallet", client.walletKey(), "total", total)

		case client := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			if !ok {
				continue
			}
			client.closeBridge()
			h.logger.Infow("ws_client_disconnected", "client", client.id, "total", total)
			if h.onLeave != nil {
				h.onLeave(client)
			}
		}
	}
}

// BroadcastToChannel sends a message to all clients subscribed to a channel
func (h *Hub) BroadcastToChannel(channel string, data any) {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("ws_marshal_failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.IsSubscribed(channel) {
			select {
			case client.send <- message:
			default:
				// Buffer full, skip this client
			}
		}
	}
}

// sendTo queues data for one client. It reports false when the client is
// gone or its buffer is full.
func (h *Hub) sendTo(client *Client, data any) bool {
	message, err := json.Marshal(data)
	if err != nil {
		h.logger.Errorw("ws_marshal_failed", "client", client.id, "error", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[client] {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Client represents a WebSocket connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	// bridge signs for the wallet the browser connected with, if any
	bridge *bridgeWallet

	// Subscribed channels
	subscriptions map[string]bool
	subsMu        sync.RWMutex
}

func newClient(hub *Hub, conn *websocket.Conn, id string) *Client {
	return &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		id:            id,
		subscriptions: map[string]bool{ChannelAccounts: true},
	}
}

// IsSubscribed checks if client is subscribed to a channel
func (c *Client) IsSubscribed(channel string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	return c.subscriptions[channel]
}

// Subscribe adds a channel subscription
func (c *Client) Subscribe(channel string) {
	c.subsMu.Lock()
	c.subscriptions[channel] = true
	c.subsMu.Unlock()
	c.hub.logger.Debugw("ws_subscribed", "client", c.id, "channel", channel)
}

// Unsubscribe removes a channel subscription
func (c *Client) Unsubscribe(channel string) {
	c.subsMu.Lock()
	delete(c.subscriptions, channel)
	c.subsMu.Unlock()
	c.hub.logger.Debugw("ws_unsubscribed", "client", c.id, "channel", channel)
}

func (c *Client) walletKey() string {
	if c.bridge == nil {
		return ""
	}
	return c.bridge.key.String()
}

func (c *Client) closeBridge() {
	if c.bridge != nil {
		c.bridge.close()
	}
}

// handleMessage applies one inbound message
func (c *Client) handleMessage(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.hub.logger.Debugw("ws_invalid_message", "client", c.id, "error", err)
		return
	}

	switch msg.Type {
	case "subscribe":
		for _, channel := range msg.Channels {
			c.Subscribe(channel)
		}
	case "unsubscribe":
		for _, channel := range msg.Channels {
			c.Unsubscribe(channel)
		}
	case "sign_response":
		if c.bridge == nil {
			c.hub.logger.Warnw("ws_unexpected_sign_response", "client", c.id)
			return
		}
		c.bridge.resolve(msg)
	default:
		c.hub.logger.Debugw("ws_unknown_message", "client", c.id, "type", msg.Type)
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warnw("ws_read_failed", "client", c.id, "error", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// one message per frame; the browser parses each frame as JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ==============================
// Wallet bridge
// ==============================

type signResult struct {
	tx  *solana.Transaction
	err error
}

// bridgeWallet is a wallet.Wallet whose signatures come from a browser
// wallet on the other end of a WebSocket
type bridgeWallet struct {
	key    solana.PublicKey
	client *Client

	mu      sync.Mutex
	pending map[string]chan signResult
	closed  bool
}

func newBridgeWallet(key solana.PublicKey, client *Client) *bridgeWallet {
	return &bridgeWallet{key: key, client: client, pending: make(map[string]chan signResult)}
}

func (b *bridgeWallet) PublicKey() solana.PublicKey { return b.key }

// SignTransaction sends a sign_request and waits for the matching
// sign_response, ctx or the connection closing
func (b *bridgeWallet) SignTransaction(ctx context.Context, tx *solana.Transaction) (*solana.Transaction, error) {
	wire := *tx
	if n := int(tx.Message.Header.NumRequiredSignatures); len(wire.Signatures) < n {
		// empty slots for the wallet to fill
		wire.Signatures = make([]solana.Signature, n)
	}
	data, err := wire.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize transaction: %w", err)
	}

	id := uuid.NewString()
	ch := make(chan signResult, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, wallet.ErrNotConnected
	}
	b.pending[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	req := SignRequest{Type: "sign_request", ID: id, Tx: base64.StdEncoding.EncodeToString(data)}
	if !b.client.hub.sendTo(b.client, req) {
		return nil, wallet.ErrNotConnected
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		if err := wallet.VerifySigned(tx, res.tx, b.key); err != nil {
			return nil, fmt.Errorf("wallet returned an invalid transaction: %w", err)
		}
		return res.tx, nil
	}
}

// resolve completes the pending request named by msg
func (b *bridgeWallet) resolve(msg WSMessage) {
	b.mu.Lock()
	ch, ok := b.pending[msg.ID]
	delete(b.pending, msg.ID)
	b.mu.Unlock()
	if !ok {
		b.client.hub.logger.Warnw("ws_unknown_sign_response", "id", msg.ID)
		return
	}

	if msg.Rejected {
		ch <- signResult{err: wallet.ErrUserRejected}
		return
	}
	tx, err := decodeTransaction(msg.SignedTx)
	ch <- signResult{tx: tx, err: err}
}

// close fails every pending request with ErrNotConnected
func (b *bridgeWallet) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.pending {
		ch <- signResult{err: wallet.ErrNotConnected}
		delete(b.pending, id)
	}
}

func decodeTransaction(encoded string) (*solana.Transaction, error) {
	if encoded == "" {
		return nil, errors.New("empty signed transaction")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 transaction: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(data))
	if err != nil {
		return nil, fmt.Errorf("invalid transaction: %w", err)
	}
	return tx, nil
}

// handleWebSocket handles WebSocket upgrade and client lifecycle. With
// ?wallet=<pubkey> the connection also becomes the session's signing wallet.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var key solana.PublicKey
	if raw := r.URL.Query().Get("wallet"); raw != "" {
		k, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid wallet address", err.Error())
			return
		}
		key = k
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "error", err)
		return
	}

	client := newClient(s.hub, conn, conn.RemoteAddr().String())
	if !key.IsZero() {
		client.bridge = newBridgeWallet(key, client)
	}
	select {
	case client.hub.register <- client:
	case <-client.hub.done:
		conn.Close()
		return
	}

	// Start read and write pumps in separate goroutines
	go client.writePump()
	go client.readPump()

	if client.bridge != nil {
		go s.connectBridge(client.bridge)
	}
}
