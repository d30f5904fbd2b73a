// -----------------------------------------------------------------------
// Broker Gateway Client - persistent TCP session to the quote gateway
// -----------------------------------------------------------------------

package broker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/rangealert/internal/models"
)

const (
	// DefaultSpacing is the minimum interval between snapshot requests.
	DefaultSpacing = 500 * time.Millisecond

	// DefaultTimeout is the per-request deadline.
	DefaultTimeout = 5 * time.Second
)

// Snapshot is one quote response from the gateway. Fields the gateway
// has no data for are null on the wire and nil here.
type Snapshot struct {
	Last  *float64 `json:"last"`
	Close *float64 `json:"close"`
	Bid   *float64 `json:"bid"`
	Ask   *float64 `json:"ask"`
}

type request struct {
	Type     string           `json:"type"`
	ReqID    int              `json:"req_id"`
	ClientID int              `json:"client_id,omitempty"`
	Contract *models.Contract `json:"contract,omitempty"`
}

type response struct {
	ReqID    int       `json:"req_id"`
	Error    string    `json:"error,omitempty"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}

// Client holds one session to the gateway. Requests are serialized;
// the limiter spaces them out so the gateway's pacing rules are never
// tripped.
type Client struct {
	host     string
	port     int
	clientID int
	timeout  time.Duration
	logger   arbor.ILogger
	limiter  *rate.Limiter

	mu     sync.Mutex
	conn   net.Conn
	enc    *json.Encoder
	dec    *json.Decoder
	nextID int
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSpacing sets the minimum interval between requests.
func WithSpacing(spacing time.Duration) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Every(spacing), 1)
	}
}

// WithTimeout sets the per-request deadline.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// NewClient creates a gateway client.
func NewClient(host string, port int, clientID int, opts ...ClientOption) *Client {
	c := &Client{
		host:     host,
		port:     port,
		clientID: clientID,
		timeout:  DefaultTimeout,
		limiter:  rate.NewLimiter(rate.Every(DefaultSpacing), 1),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect dials the gateway and performs the handshake. Safe to call
// when already connected.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", models.ErrBrokerUnavailable, addr, err)
	}

	c.conn = conn
	c.enc = json.NewEncoder(conn)
	c.dec = json.NewDecoder(bufio.NewReader(conn))

	if err := c.handshake(); err != nil {
		conn.Close()
		c.conn = nil
		return err
	}

	if c.logger != nil {
		c.logger.Info().
			Str("gateway", addr).
			Int("client_id", c.clientID).
			Msg("Broker gateway connected")
	}
	return nil
}

func (c *Client) handshake() error {
	c.nextID++
	req := request{Type: "handshake", ReqID: c.nextID, ClientID: c.clientID}

	c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.enc.Encode(req); err != nil {
		return fmt.Errorf("%w: handshake write: %v", models.ErrBrokerUnavailable, err)
	}
	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		return fmt.Errorf("%w: handshake read: %v", models.ErrBrokerUnavailable, err)
	}
	if resp.Error != "" {
		return fmt.Errorf("%w: handshake rejected: %s", models.ErrBrokerUnavailable, resp.Error)
	}
	return nil
}

// Snapshot requests one quote. Per-ticker problems surface as
// ErrNoQuote; a dead session surfaces as ErrBrokerUnavailable.
func (c *Client) Snapshot(ctx context.Context, contract models.Contract) (*Snapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: pacing wait: %v", models.ErrNoQuote, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, fmt.Errorf("%w: not connected", models.ErrBrokerUnavailable)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	c.nextID++
	req := request{Type: "snapshot", ReqID: c.nextID, Contract: &contract}
	if err := c.enc.Encode(req); err != nil {
		c.drop()
		return nil, fmt.Errorf("%w: snapshot write: %v", models.ErrBrokerUnavailable, err)
	}

	var resp response
	if err := c.dec.Decode(&resp); err != nil {
		c.drop()
		return nil, fmt.Errorf("%w: snapshot read: %v", models.ErrBrokerUnavailable, err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%w: %s: %s", models.ErrNoQuote, contract.Symbol, resp.Error)
	}
	if resp.Snapshot == nil {
		return nil, fmt.Errorf("%w: %s: empty snapshot", models.ErrNoQuote, contract.Symbol)
	}
	return resp.Snapshot, nil
}

// drop tears the session down after a transport error so the next
// Connect starts clean.
func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close ends the session.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
