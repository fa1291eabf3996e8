package group

import (
	"bytes"
	"io"
	"sync"
)

type received struct {
	from    string
	payload string
}

// recorder is a Receiver that keeps everything it is handed.
type recorder struct {
	mu       sync.Mutex
	messages []received
	views    []View
	state    []byte
	applied  []byte
}

func (r *recorder) Receive(from Member, payload []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, received{from: from.ID, payload: string(payload)})
}

func (r *recorder) ViewAccepted(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) GetState(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := w.Write(r.state)
	return err
}

func (r *recorder) SetState(rd io.Reader) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, rd); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = buf.Bytes()
	return nil
}

func (r *recorder) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.messages))
	for i, m := range r.messages {
		out[i] = m.from + ":" + m.payload
	}
	return out
}

func (r *recorder) lastView() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[len(r.views)-1]
}

func (r *recorder) appliedState() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied
}

func memberIDs(v View) []string {
	ids := make([]string, len(v.Members))
	for i, m := range v.Members {
		ids[i] = m.ID
	}
	return ids
}
