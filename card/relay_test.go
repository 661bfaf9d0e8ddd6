package card

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transmitResult struct {
	body     []byte
	sw1, sw2 byte
	err      error
}

// scriptedCard replays transmit results in order and records the commands.
type scriptedCard struct {
	results  []transmitResult
	commands [][]byte
}

func (c *scriptedCard) ATR() ([]byte, error) { return []byte{0x3B, 0x00}, nil }

func (c *scriptedCard) Transmit(apdu []byte) ([]byte, byte, byte, error) {
	c.commands = append(c.commands, append([]byte{}, apdu...))
	if len(c.results) == 0 {
		return nil, 0x6F, 0x00, nil
	}
	r := c.results[0]
	c.results = c.results[1:]
	return r.body, r.sw1, r.sw2, r.err
}

func TestRelayChainsGetResponseOnce(t *testing.T) {
	c := &scriptedCard{results: []transmitResult{
		{body: nil, sw1: 0x61, sw2: 0x05},
		{body: []byte{0xAA, 0xBB, 0xBB, 0xBB, 0xBB}, sw1: 0x90, sw2: 0x00},
	}}

	out, err := Relay(c, []byte{0x00, 0xA4, 0x08, 0x04, 0x02, 0x2F, 0xE2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB, 0xBB, 0xBB, 0xBB, 0x90, 0x00}, out)

	require.Len(t, c.commands, 2)
	assert.Equal(t, []byte{0x00, 0xC0, 0x00, 0x00, 0x05}, c.commands[1])
}

func TestRelayDoesNotLoop(t *testing.T) {
	c := &scriptedCard{results: []transmitResult{
		{sw1: 0x61, sw2: 0x10},
		{body: []byte{0x01}, sw1: 0x61, sw2: 0x02},
		{body: []byte{0x02}, sw1: 0x90, sw2: 0x00},
	}}

	out, err := Relay(c, []byte{0x00, 0xB0, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x61, 0x02}, out)
	assert.Len(t, c.commands, 2)
}

func TestRelayPlainResponse(t *testing.T) {
	c := &scriptedCard{results: []transmitResult{{body: []byte{0x01, 0x02}, sw1: 0x90, sw2: 0x00}}}

	out, err := Relay(c, []byte{0x00, 0xB0, 0x00, 0x00, 0x02})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02, 0x90, 0x00}, out)
	assert.Len(t, c.commands, 1)
}

func TestRelayPropagatesTransmitErrors(t *testing.T) {
	boom := errors.New("reader unplugged")

	_, err := Relay(&scriptedCard{results: []transmitResult{{err: boom}}}, []byte{0x00})
	assert.ErrorIs(t, err, boom)

	_, err = Relay(&scriptedCard{results: []transmitResult{{sw1: 0x61, sw2: 0x01}, {err: boom}}}, []byte{0x00})
	assert.ErrorIs(t, err, boom)
}

func TestSplitResponse(t *testing.T) {
	data, sw, err := SplitResponse([]byte{0x6F, 0x00, 0x90, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x6F, 0x00}, data)
	assert.Equal(t, SWNoError, sw)

	_, _, err = SplitResponse([]byte{0x90})
	assert.ErrorIs(t, err, ErrShortResponse)
}
