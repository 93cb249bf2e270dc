package domain

import (
	"fmt"
	"time"
)

// Priority selects the waiting lane of a ticket.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
)

// Valid reports whether p names one of the two lanes.
func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityNormal
}

// Ticket is a subject's place in line. Code is unique within one queue epoch.
type Ticket struct {
	Code      string    `json:"code"`
	SubjectID string    `json:"subjectId"`
	Priority  Priority  `json:"priority"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	firstLetter = 'A'
	lastLetter  = 'Z'
	maxSequence = 99
)

// TicketCounter is the global code sequence, a letter A-Z followed by a
// sequence 1-99. Codes wrap from Z99 back to A01.
type TicketCounter struct {
	Letter   string `json:"letter"`
	Sequence int    `json:"sequence"`
}

// NewTicketCounter returns a counter positioned at A01.
func NewTicketCounter() TicketCounter {
	return TicketCounter{Letter: string(rune(firstLetter)), Sequence: 1}
}

// Peek returns the code Next would issue without advancing.
func (c TicketCounter) Peek() string {
	c = c.normalized()
	return fmt.Sprintf("%s%02d", c.Letter, c.Sequence)
}

// Next returns the current code and advances the counter in place.
func (c *TicketCounter) Next() string {
	*c = c.normalized()
	code := c.Peek()
	if c.Sequence >= maxSequence {
		c.Sequence = 1
		next := c.Letter[0] + 1
		if next > lastLetter {
			next = firstLetter
		}
		c.Letter = string(rune(next))
		return code
	}
	c.Sequence++
	return code
}

// normalized repairs counters decoded from damaged snapshots.
func (c TicketCounter) normalized() TicketCounter {
	if len(c.Letter) != 1 || c.Letter[0] < firstLetter || c.Letter[0] > lastLetter {
		c.Letter = string(rune(firstLetter))
	}
	if c.Sequence < 1 || c.Sequence > maxSequence {
		c.Sequence = 1
	}
	return c
}
