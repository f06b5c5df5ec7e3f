package endpoint

// FakeRequest is a scripted Request that records its reply.
type FakeRequest struct {
	Cmd     string
	CmdErr  error
	Body    string
	Replies int
	Closed  bool
}

// Command returns the scripted command.
func (r *FakeRequest) Command() (string, error) {
	return r.Cmd, r.CmdErr
}

// Respond records body. A second call returns ErrClosed.
func (r *FakeRequest) Respond(body string) error {
	if r.Closed {
		return ErrClosed
	}
	r.Body = body
	r.Replies++
	r.Closed = true
	return nil
}

// Close marks the request closed.
func (r *FakeRequest) Close() error {
	r.Closed = true
	return nil
}

// FakeInbox hands out queued requests, one per Poll.
type FakeInbox struct {
	Queue   []*FakeRequest
	PollErr error
	Polls   int
	Closed  bool
}

// Push queues a request for cmd and returns it.
func (f *FakeInbox) Push(cmd string) *FakeRequest {
	r := &FakeRequest{Cmd: cmd}
	f.Queue = append(f.Queue, r)
	return r
}

// Poll pops the next request.
func (f *FakeInbox) Poll() (Request, error) {
	f.Polls++
	if f.PollErr != nil {
		return nil, f.PollErr
	}
	if len(f.Queue) == 0 {
		return nil, nil
	}
	r := f.Queue[0]
	f.Queue = f.Queue[1:]
	return r, nil
}

// Close marks the inbox closed.
func (f *FakeInbox) Close() error {
	f.Closed = true
	return nil
}
