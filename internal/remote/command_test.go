package remote

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"git@github.com:alice/blog.git", "git@github.com:alice/blog.git"},
		{"", "''"},
		{"two words", "'two words'"},
		{"it's", `'it'"'"'s'`},
		{"$(rm -rf /)", "'$(rm -rf /)'"},
		{"a;b", "'a;b'"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Quote(tt.in), tt.in)
	}
}

func TestCommand_Line(t *testing.T) {
	assert.Equal(t, "yn-shard init alice blog", Init("alice", "blog").String())
	assert.Equal(t, "yn-shard update alice blog 8123", Update("alice", "blog", 8123).String())
	assert.Equal(t, "/usr/local/bin/yn-shard clone alice blog 'https://host/a b.git'",
		Clone("alice", "blog", "https://host/a b.git").Line("/usr/local/bin/yn-shard"))
}

func TestCommand_Constructors(t *testing.T) {
	assert.Equal(t, Command{Op: OpPull, Args: []string{"u", "a"}}, Pull("u", "a"))
	assert.Equal(t, Command{Op: OpStart, Args: []string{"u", "a"}}, Start("u", "a"))
	assert.Equal(t, Command{Op: OpStop, Args: []string{"u", "a"}}, Stop("u", "a"))
	assert.Equal(t, Command{Op: OpDestroy, Args: []string{"u", "a"}}, Destroy("u", "a"))
	assert.Equal(t, Command{Op: OpStatus, Args: []string{"u", "a"}}, Status("u", "a"))
}
