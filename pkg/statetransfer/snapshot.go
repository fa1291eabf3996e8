// Package statetransfer moves the full state of a node to a newly joined
// member and merges it without overwriting what the joiner already has.
package statetransfer

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/golang/snappy"

	"github.com/dd0wney/cluso-filestore/pkg/accounts"
)

// Snapshot is the transferable state of a node.
type Snapshot struct {
	Metadata map[string]int64   `json:"metadata"`
	Files    map[string][]byte  `json:"files"`
	Accounts []accounts.Account `json:"accounts"`
}

// Encode writes s to w as snappy-framed JSON.
func Encode(w io.Writer, s Snapshot) error {
	sw := snappy.NewBufferedWriter(w)
	if err := json.NewEncoder(sw).Encode(s); err != nil {
		_ = sw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("flush snapshot: %w", err)
	}
	return nil
}

// Decode reads a snapshot written by Encode.
func Decode(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(snappy.NewReader(r)).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}

type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
