package group

import "strings"

// Member is the network identity of one group participant. Two members are
// equal when every field matches.
type Member struct {
	ID        string `json:"id"`
	Addr      string `json:"addr"`
	StateAddr string `json:"state_addr,omitempty"`
	API       string `json:"api,omitempty"`
}

func (m Member) String() string {
	return m.ID
}

// IsZero reports whether m is the zero Member.
func (m Member) IsZero() bool {
	return m == Member{}
}

// View is the ordered member list agreed by the group. Members are ordered
// oldest first and Creator is the member that installed the view.
type View struct {
	ID      uint64   `json:"id"`
	Creator Member   `json:"creator"`
	Members []Member `json:"members"`
}

// Size returns the number of members, self included.
func (v View) Size() int {
	return len(v.Members)
}

// Contains reports whether m is in the view.
func (v View) Contains(m Member) bool {
	return v.IndexOf(m.ID) >= 0
}

// IndexOf returns the position of the member with the given id, or -1.
func (v View) IndexOf(id string) int {
	for i, m := range v.Members {
		if m.ID == id {
			return i
		}
	}
	return -1
}

// Without returns the members other than m, preserving order.
func (v View) Without(m Member) []Member {
	out := make([]Member, 0, len(v.Members))
	for _, x := range v.Members {
		if x.ID != m.ID {
			out = append(out, x)
		}
	}
	return out
}

// Clone returns a deep copy of the view.
func (v View) Clone() View {
	out := v
	out.Members = append([]Member(nil), v.Members...)
	return out
}

// String renders the view as "[id|a, b, c]".
func (v View) String() string {
	ids := make([]string, len(v.Members))
	for i, m := range v.Members {
		ids[i] = m.ID
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(v.Creator.ID)
	b.WriteString("|")
	b.WriteString(strings.Join(ids, ", "))
	b.WriteString("]")
	return b.String()
}
