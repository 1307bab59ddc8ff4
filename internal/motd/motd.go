package motd

import (
	"errors"
	"math/rand"
	"os"
	"strings"
	"sync"
)

// Rotator serves a message of the day picked at random from a file and
// re-picks after every N requests.
type Rotator struct {
	mu      sync.Mutex
	lines   []string
	current string
	count   int
	every   int
}

// NewRotator loads the motd file and picks an initial message.
func NewRotator(path string, every int) (*Rotator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return nil, errors.New("motd file has no entries")
	}
	if every <= 0 {
		every = 5
	}

	return &Rotator{
		lines:   lines,
		current: lines[rand.Intn(len(lines))],
		every:   every,
	}, nil
}

// Current returns the message of the day, rotating it once every `every`
// requests.
func (r *Rotator) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := r.current
	r.count++
	if r.count >= r.every {
		r.current = r.lines[rand.Intn(len(r.lines))]
		r.count = 0
	}
	return msg
}
