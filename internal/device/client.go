// Package device performs command exchanges with a fingerprint module: frame
// a command, write it, read back exactly one response frame, decode it and
// interpret the confirmation code.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/monitoring"
	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
	"github.com/VioletBL/fingerprint-sensor/internal/uart"
)

// DefaultResponseTimeout bounds a single round trip.
const DefaultResponseTimeout = 2000 * time.Millisecond

var (
	// ErrTransportTimeout means no byte of a response arrived in time.
	ErrTransportTimeout = errors.New("no response from module")
	// ErrUnexpectedPacket means the module answered with something other than an ack.
	ErrUnexpectedPacket = errors.New("unexpected packet identifier")
	// ErrAddressMismatch means the response came from a different module address.
	ErrAddressMismatch = errors.New("response address mismatch")
)

// Executor runs one command against a module and reports the interpreted
// confirmation code. Any other implementation of the protocol (a vendor
// driver, a simulator) plugs in here.
type Executor interface {
	Execute(ctx context.Context, cmd protocol.Command) (protocol.Code, error)
}

// DeviceError is a device-reported failure for a command.
type DeviceError struct {
	Command protocol.Instruction
	Code    protocol.Code
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Command, e.Code)
}

// IsDeviceError reports whether err carries a device-reported code of kind k.
func IsDeviceError(err error, k protocol.Kind) bool {
	var de *DeviceError
	return errors.As(err, &de) && de.Code.Kind == k
}

// Client owns the transport. Only one exchange is in flight at a time.
type Client struct {
	port    uart.Port
	address uint32
	timeout time.Duration
	mu      sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithAddress sets the module address; the default is broadcast.
func WithAddress(addr uint32) Option {
	return func(c *Client) { c.address = addr }
}

// WithResponseTimeout sets the per-exchange response timeout.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a Client talking over port.
func NewClient(port uart.Port, opts ...Option) *Client {
	if port == nil {
		panic("port cannot be nil")
	}
	c := &Client{
		port:    port,
		address: protocol.DefaultAddress,
		timeout: DefaultResponseTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Address returns the module address used for requests.
func (c *Client) Address() uint32 { return c.address }

// Execute sends cmd and interprets the response. A non-success code is not an
// error here; callers decide what a code means for their workflow.
func (c *Client) Execute(ctx context.Context, cmd protocol.Command) (protocol.Code, error) {
	resp, err := c.exchange(ctx, cmd)
	if err != nil {
		return protocol.Code{}, fmt.Errorf("%s: %w", cmd.Instruction, err)
	}
	code := protocol.Interpret(cmd, resp)
	monitoring.Logf("fingerprint: %s -> %s", cmd, code)
	return code, nil
}

// Handshake verifies the module password. It is the first thing to do after
// opening the port: a module that does not answer is not worth enrolling on.
func (c *Client) Handshake(ctx context.Context, password uint32) error {
	cmd := protocol.VerifyPassword(password)
	code, err := c.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	if !code.OK() {
		return &DeviceError{Command: cmd.Instruction, Code: code}
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, cmd protocol.Command) (*protocol.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// a reply to an earlier command that arrived after we stopped waiting
	// must not be read as the answer to this one
	if err := c.port.ResetInput(); err != nil {
		return nil, fmt.Errorf("reset input: %w", err)
	}

	frame := protocol.Encode(protocol.PIDCommand, c.address, cmd.Payload())
	if err := c.port.Write(frame); err != nil {
		return nil, fmt.Errorf("write: %w", err)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	pkt, err := c.readResponse(deadline)
	if err != nil {
		c.discardInput()
		return nil, err
	}
	if pkt.Identifier != protocol.PIDAck {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedPacket, pkt.Identifier)
	}
	if pkt.Address != c.address {
		return nil, fmt.Errorf("%w: sent to 0x%08X, reply from 0x%08X", ErrAddressMismatch, c.address, pkt.Address)
	}
	return pkt, nil
}

// readResponse reads and decodes one frame before deadline.
func (c *Client) readResponse(deadline time.Time) (*protocol.Packet, error) {
	head, err := c.port.ReadWithTimeout(protocol.HeadSize, time.Until(deadline))
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if len(head) == 0 {
		return nil, ErrTransportTimeout
	}

	size, err := protocol.FrameSize(head)
	if err != nil {
		return nil, err
	}

	raw := head
	if rest := size - len(head); rest > 0 {
		tail, err := c.port.ReadWithTimeout(rest, time.Until(deadline))
		if err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		raw = append(raw, tail...)
	}
	return protocol.Decode(raw)
}

// discardInput drops the remains of a frame that failed to arrive whole.
func (c *Client) discardInput() {
	if err := c.port.ResetInput(); err != nil {
		monitoring.Logf("fingerprint: discard input: %v", err)
	}
}
