package transport

import (
	"bytes"
	"sync"
	"time"
)

// MockPort implements Port with configurable behaviour for testing.
// It provides fine-grained control over reads, writes and errors.
type MockPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// Respond, if set, is called with every write and its result is queued
	// for reading. It lets a test play the device side of a protocol.
	Respond func(written []byte) []byte

	// ReadError is returned by the next Read call if set
	ReadError error

	// WriteError is returned by the next Write call if set
	WriteError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// WriteCalls records the number of Write calls
	WriteCalls int

	// DrainCalls records the number of ResetInputBuffer calls
	DrainCalls int

	// ReadTimeout is the last read timeout set
	ReadTimeout time.Duration
}

// NewMockPort creates a new MockPort for testing.
func NewMockPort() *MockPort {
	return &MockPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read drains the read buffer. An empty buffer reads as a timeout (0, nil).
func (m *MockPort) Read(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReadCalls++
	if m.Closed {
		return 0, ErrClosed
	}
	if m.ReadError != nil {
		err := m.ReadError
		m.ReadError = nil
		return 0, err
	}
	if m.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return m.ReadBuffer.Read(p)
}

// Write records p and queues any scripted response.
func (m *MockPort) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.WriteCalls++
	if m.Closed {
		return 0, ErrClosed
	}
	if m.WriteError != nil {
		err := m.WriteError
		m.WriteError = nil
		return 0, err
	}
	n, _ := m.WriteBuffer.Write(p)
	if m.Respond != nil {
		m.ReadBuffer.Write(m.Respond(append([]byte(nil), p...)))
	}
	return n, nil
}

// Close marks the port as closed.
func (m *MockPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// SetReadTimeout implements Port.
func (m *MockPort) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadTimeout = timeout
	return nil
}

// ResetInputBuffer implements Port.
func (m *MockPort) ResetInputBuffer() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DrainCalls++
	m.ReadBuffer.Reset()
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (m *MockPort) AddReadData(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ReadBuffer.Write(data)
}

// Written returns a copy of everything written so far.
func (m *MockPort) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.WriteBuffer.Bytes()...)
}
