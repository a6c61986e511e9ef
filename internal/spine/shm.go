package spine

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"
)

const (
	mapSize    = 1 << 16
	headerSize = 8 // 1 turn byte, 3 pad, 4 payload length

	turnIdle    = 0
	turnRequest = 1
	turnReply   = 2
)

// ErrSpineTimeout reports a spine that stopped answering within the reply
// deadline. Callers treat it as fatal for the whole run.
var ErrSpineTimeout = errors.New("spine did not reply before deadline")

// ShmClient is the production Spine implementation: a request/reply
// mailbox in the spine's shared-memory file. One request is in flight at
// a time, which matches the strictly alternating agent/spine cycle.
type ShmClient struct {
	name    string
	data    []byte
	timeout time.Duration
	closed  bool
}

type request struct {
	Op     string         `json:"op"` // "reset" or "step"
	Config map[string]any `json:"config,omitempty"`
	Action *Action        `json:"action,omitempty"`
}

type reply struct {
	Observation Observation `json:"observation"`
	Error       string      `json:"error,omitempty"`
}

// Dial maps the shared-memory file for the named channel, waiting for the
// freshly spawned spine to create it.
func Dial(shmName string) (Spine, error) {
	return DialTimeout(shmName, 10*time.Second)
}

// DialTimeout is Dial with an explicit bound on how long to wait for the
// spine to come up.
func DialTimeout(shmName string, timeout time.Duration) (Spine, error) {
	path := "/dev/shm" + shmName
	deadline := time.Now().Add(timeout)
	var fd int
	for {
		var err error
		fd, err = syscall.Open(path, syscall.O_RDWR, 0o600)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("spine channel %s never appeared: %w", shmName, ErrSpineTimeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
	data, err := syscall.Mmap(fd, 0, mapSize, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	_ = syscall.Close(fd)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	return &ShmClient{name: shmName, data: data, timeout: timeout}, nil
}

func (c *ShmClient) Reset(config map[string]any) (Observation, error) {
	return c.roundTrip(request{Op: "reset", Config: config})
}

func (c *ShmClient) Step(action Action) (Observation, error) {
	a := action
	return c.roundTrip(request{Op: "step", Action: &a})
}

// Close unmaps the channel. The shared-memory file itself is owned by the
// spine and removed when it exits.
func (c *ShmClient) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return syscall.Munmap(c.data)
}

func (c *ShmClient) roundTrip(req request) (Observation, error) {
	if c.closed {
		return Observation{}, fmt.Errorf("channel %s is closed", c.name)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return Observation{}, err
	}
	if len(payload) > mapSize-headerSize {
		return Observation{}, fmt.Errorf("request of %d bytes exceeds channel capacity", len(payload))
	}
	copy(c.data[headerSize:], payload)
	binary.LittleEndian.PutUint32(c.data[4:8], uint32(len(payload)))
	c.data[0] = turnRequest

	deadline := time.Now().Add(c.timeout)
	for c.data[0] != turnReply {
		if time.Now().After(deadline) {
			return Observation{}, fmt.Errorf("channel %s: %w", c.name, ErrSpineTimeout)
		}
		time.Sleep(50 * time.Microsecond)
	}
	n := binary.LittleEndian.Uint32(c.data[4:8])
	var rep reply
	if err := json.Unmarshal(c.data[headerSize:headerSize+int(n)], &rep); err != nil {
		return Observation{}, fmt.Errorf("channel %s: bad reply: %w", c.name, err)
	}
	c.data[0] = turnIdle
	if rep.Error != "" {
		return Observation{}, fmt.Errorf("spine %s: %s", c.name, rep.Error)
	}
	return rep.Observation, nil
}
