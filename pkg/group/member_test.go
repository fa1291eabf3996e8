package group

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestViewHelpers(t *testing.T) {
	a, b, c := Member{ID: "a", Addr: "x"}, Member{ID: "b"}, Member{ID: "c"}
	v := View{ID: 3, Creator: a, Members: []Member{a, b, c}}

	assert.Equal(t, 3, v.Size())
	assert.True(t, v.Contains(b))
	assert.False(t, v.Contains(Member{ID: "d"}))
	assert.Equal(t, 2, v.IndexOf("c"))
	assert.Equal(t, []Member{a, c}, v.Without(b))
	assert.Equal(t, "[a|a, b, c]", v.String())

	clone := v.Clone()
	clone.Members[0] = c
	assert.Equal(t, a, v.Members[0], "Clone must not share the member slice")

	assert.True(t, Member{}.IsZero())
	assert.False(t, a.IsZero())
}
