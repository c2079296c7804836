package rcon

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"idealcity/internal/safety"
	"idealcity/internal/tuning"
)

// Client speaks RCON to the game server. Safe for use from one goroutine at
// a time; the pipeline serialises dispatch anyway, the mutex is for the
// admin CLI sharing a connection.
type Client struct {
	addr     string
	password string
	timeout  time.Duration

	mu     sync.Mutex
	conn   net.Conn
	nextID int32
}

func NewClient(cfg tuning.RCON) *Client {
	return &Client{
		addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		password: cfg.Password,
		timeout:  time.Duration(cfg.TimeoutSec) * time.Second,
		nextID:   1,
	}
}

// RunCommands re-validates every command, then dispatches them in order and
// returns the per-command responses. A safety violation aborts before any
// network traffic.
func (c *Client) RunCommands(ctx context.Context, commands []string) ([]string, error) {
	if errs, _ := safety.ValidateCommands(commands); len(errs) > 0 {
		return nil, fmt.Errorf("rcon: unsafe command batch: %s", strings.Join(errs, ", "))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureConnLocked(ctx); err != nil {
		return nil, err
	}

	responses := make([]string, 0, len(commands))
	for _, cmd := range commands {
		resp, err := c.roundTripLocked(packet{RequestID: c.claimID(), Type: typeCommand, Payload: cmd})
		if err != nil {
			c.closeLocked()
			return responses, fmt.Errorf("rcon: %q: %w", cmd, err)
		}
		responses = append(responses, resp.Payload)
	}
	return responses, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("rcon: dial %s: %w", c.addr, err)
	}
	c.conn = conn

	id := c.claimID()
	resp, err := c.roundTripLocked(packet{RequestID: id, Type: typeLogin, Payload: c.password})
	if err != nil {
		c.closeLocked()
		return fmt.Errorf("rcon: login: %w", err)
	}
	// Server echoes request_id = -1 on auth failure.
	if resp.RequestID == -1 {
		c.closeLocked()
		return fmt.Errorf("rcon: authentication rejected")
	}
	return nil
}

func (c *Client) roundTripLocked(p packet) (packet, error) {
	deadline := time.Now().Add(c.timeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return packet{}, err
	}
	if _, err := c.conn.Write(encodePacket(p)); err != nil {
		return packet{}, err
	}
	return decodePacket(c.conn)
}

func (c *Client) claimID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID < 0 {
		c.nextID = 1
	}
	return id
}

func (c *Client) closeLocked() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
