package device

import (
	"errors"
	"sync"
	"time"

	"github.com/VioletBL/fingerprint-sensor/internal/protocol"
)

var errSimulatorClosed = errors.New("simulator closed")

// Simulator is an in-memory fingerprint module. It implements uart.Port:
// every written command frame queues one ack frame for the next reads. It
// backs dev mode and the tests.
type Simulator struct {
	mu      sync.Mutex
	address uint32
	pending []byte
	scripts map[protocol.Instruction][]byte
	sent    []protocol.Command
	stored  map[uint16]bool
	silent  bool
	closed  bool
}

// NewSimulator returns a module that answers at address and accepts every
// command unless scripted otherwise.
func NewSimulator(address uint32) *Simulator {
	return &Simulator{
		address: address,
		scripts: make(map[protocol.Instruction][]byte),
		stored:  make(map[uint16]bool),
	}
}

// Script queues raw confirmation bytes for ins. They are consumed in order;
// once exhausted the simulator answers 0x00.
func (s *Simulator) Script(ins protocol.Instruction, codes ...byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[ins] = append(s.scripts[ins], codes...)
}

// SetSilent makes the module stop answering.
func (s *Simulator) SetSilent(silent bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.silent = silent
}

// Commands returns every command received so far.
func (s *Simulator) Commands() []protocol.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Command(nil), s.sent...)
}

// Stored reports whether a template was written to slot id.
func (s *Simulator) Stored(id uint16) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stored[id]
}

// Write decodes a command frame and stages the reply. Frames that do not
// decode get a packet-receive-error ack, as the real module does.
func (s *Simulator) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSimulatorClosed
	}

	pkt, err := protocol.Decode(p)
	if err != nil || pkt.Identifier != protocol.PIDCommand || len(pkt.Payload) == 0 {
		s.reply(0x01)
		return nil
	}

	cmd := protocol.Command{
		Instruction: protocol.Instruction(pkt.Payload[0]),
		Params:      append([]byte(nil), pkt.Payload[1:]...),
	}
	s.sent = append(s.sent, cmd)

	code := byte(0x00)
	if q := s.scripts[cmd.Instruction]; len(q) > 0 {
		code, s.scripts[cmd.Instruction] = q[0], q[1:]
	}
	if cmd.Instruction == protocol.InsStoreModel && code == 0x00 && len(cmd.Params) == 3 {
		s.stored[uint16(cmd.Params[1])<<8|uint16(cmd.Params[2])] = true
	}
	s.reply(code)
	return nil
}

func (s *Simulator) reply(code byte) {
	if s.silent {
		return
	}
	s.pending = append(s.pending, protocol.Encode(protocol.PIDAck, s.address, []byte{code})...)
}

// ReadWithTimeout returns up to max staged bytes; it never blocks.
func (s *Simulator) ReadWithTimeout(max int, _ time.Duration) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := min(max, len(s.pending))
	out := append([]byte(nil), s.pending[:n]...)
	s.pending = s.pending[n:]
	return out, nil
}

// ResetInput drops staged replies that have not been read.
func (s *Simulator) ResetInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	return nil
}

// Inject stages raw bytes as if the module had sent them unprompted, such as
// a reply that arrives after the client stopped waiting.
func (s *Simulator) Inject(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, b...)
}

// Close stops the simulator.
func (s *Simulator) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
