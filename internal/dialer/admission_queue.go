package dialer

// AdmissionQueue is the FIFO of call requests waiting for a free channel.
// Requests whose provisioning failed go back to the front. There is no length
// limit. Not safe for concurrent use.
type AdmissionQueue struct {
	items []CallRequest
	head  int
}

// Push appends requests in order.
func (q *AdmissionQueue) Push(reqs ...CallRequest) {
	q.items = append(q.items, reqs...)
}

// PushFront reinserts req ahead of every queued request.
func (q *AdmissionQueue) PushFront(req CallRequest) {
	if q.head > 0 {
		q.head--
		q.items[q.head] = req
		return
	}
	q.items = append([]CallRequest{req}, q.items...)
}

// Pop removes and returns the head request.
func (q *AdmissionQueue) Pop() (CallRequest, bool) {
	if q.Len() == 0 {
		return CallRequest{}, false
	}
	req := q.items[q.head]
	q.items[q.head] = CallRequest{}
	q.head++

	// compact once the consumed prefix dominates the backing array
	if q.head > 1024 && q.head*2 > len(q.items) {
		q.items = append([]CallRequest(nil), q.items[q.head:]...)
		q.head = 0
	}
	return req, true
}

// Len is the number of queued requests.
func (q *AdmissionQueue) Len() int {
	return len(q.items) - q.head
}

// CallIDs lists queued call ids from head to tail.
func (q *AdmissionQueue) CallIDs() []string {
	ids := make([]string, 0, q.Len())
	for _, r := range q.items[q.head:] {
		ids = append(ids, r.CallID)
	}
	return ids
}
