package transport

import (
	"sync"

	"github.com/printhost/marlineeprom/internal/logging"
)

// Queue is an outbound command buffer. The EEPROM service pushes G-code
// commands into it and the serial bridge drains them in order over HTTP.
type Queue struct {
	mu       sync.Mutex
	commands []string
	logger   *logging.Logger
}

// NewQueue creates an empty command queue.
func NewQueue(logger *logging.Logger) *Queue {
	return &Queue{logger: logger}
}

// SendCommand appends a command to the queue.
func (q *Queue) SendCommand(cmd string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.commands = append(q.commands, cmd)
	q.logger.Debug("Queued printer command", logging.WithField("command", cmd))
}

// Drain returns all pending commands in send order and empties the queue.
func (q *Queue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.commands
	q.commands = nil
	return out
}

// Pending reports the number of queued commands.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.commands)
}
