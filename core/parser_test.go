package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	e, ok := ParseLine(`1700000000.123456 [0 10.0.0.5:54321] "GET" "user:42"`)
	if !assert.True(t, ok, "should parse a well-formed line") {
		return
	}
	assert.Equal(t, 1700000000.123456, e.Timestamp)
	assert.Equal(t, 0, e.DB)
	assert.Equal(t, "10.0.0.5", e.ClientIP)
	assert.Equal(t, 54321, e.ClientPort)
	assert.Equal(t, "GET", e.Command)
	assert.Equal(t, "user:42", e.Key)
	assert.Equal(t, `1700000000.123456 [0 10.0.0.5:54321] "GET" "user:42"`, e.Raw)
}

func TestParseLine_NoKey(t *testing.T) {
	e, ok := ParseLine(`1700000000.000001 [3 172.16.0.9:40000] "PING"`)
	if !assert.True(t, ok, "should parse a key-less command") {
		return
	}
	assert.Equal(t, 3, e.DB)
	assert.Equal(t, "PING", e.Command)
	assert.Empty(t, e.Key)
}

func TestParseLine_UppercasesCommand(t *testing.T) {
	e, ok := ParseLine(`1700000000.5 [0 10.0.0.5:54321] "hgetall" "cart:77"`)
	if !assert.True(t, ok) {
		return
	}
	assert.Equal(t, "HGETALL", e.Command)
	assert.Equal(t, "cart:77", e.Key)
}

func TestParseLine_ExtraArgsIgnored(t *testing.T) {
	e, ok := ParseLine(`1700000000.9 [0 10.0.0.5:54321] "SET" "user:42" "payload" "EX" "60"`)
	if !assert.True(t, ok) {
		return
	}
	assert.Equal(t, "SET", e.Command)
	assert.Equal(t, "user:42", e.Key, "only the first argument is the key")
}

func TestParseLine_Malformed(t *testing.T) {
	lines := []string{
		"",
		"OK",
		"not a monitor line at all",
		`[0 10.0.0.5:54321] "GET" "user:42"`,
		`1700000000.123456 [0 10.0.0.5:54321] GET user:42`,
	}
	for _, line := range lines {
		_, ok := ParseLine(line)
		assert.False(t, ok, "should reject %q", line)
	}
}
