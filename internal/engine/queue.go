package engine

import "time"

// QueuedBetRequest is a wager asked for outside the betting window, parked
// until the next window opens.
type QueuedBetRequest struct {
	Amount      float64   `json:"amount"`
	RequestedAt time.Time `json:"requested_at"`
}

// betQueue is a single-slot, last-wins queue. A request is flushed at most
// once; flush failures are reported to the player, never silently re-queued.
type betQueue struct {
	slot *QueuedBetRequest
}

// enqueue replaces any existing queued request.
func (q *betQueue) enqueue(amount float64, now time.Time) {
	q.slot = &QueuedBetRequest{Amount: amount, RequestedAt: now}
}

// take empties the slot and returns its contents.
func (q *betQueue) take() (QueuedBetRequest, bool) {
	if q.slot == nil {
		return QueuedBetRequest{}, false
	}
	req := *q.slot
	q.slot = nil
	return req, true
}

func (q *betQueue) clear() {
	q.slot = nil
}

func (q *betQueue) peek() *QueuedBetRequest {
	if q.slot == nil {
		return nil
	}
	req := *q.slot
	return &req
}
