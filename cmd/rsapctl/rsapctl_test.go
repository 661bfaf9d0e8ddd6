package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/younglifestyle/rsap4go/codec"
	"github.com/younglifestyle/rsap4go/rsap"
)

func TestDefaultScriptReassembles(t *testing.T) {
	script, err := defaultScript(300)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x01, 0x2C, 0x00, 0x00}, script[0].chunk)

	r := codec.NewReassembler(rsap.DefaultLimits())
	var frames []rsap.Frame
	for _, s := range script {
		r.Accumulate(s.chunk)
		f, err := r.TryTakeFrame()
		require.NoError(t, err, s.name)
		if f != nil {
			frames = append(frames, *f)
		}
	}
	require.Len(t, frames, 6)
	assert.Equal(t, 0, r.Len())

	apdus := [][]byte{
		{0x00, 0xA4, 0x00, 0x04, 0x02, 0x3F, 0x00},
		{0x00, 0xA4, 0x08, 0x04, 0x02, 0x2F, 0xE2},
		{0x00, 0xB0, 0x00, 0x00, 0x0A},
	}
	for i, want := range apdus {
		got, err := rsap.ExtractCommandAPDU(frames[2+i])
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	profile, err := rsap.ExtractCommandAPDU(frames[5])
	require.NoError(t, err)
	assert.Len(t, profile, 25)
}

func TestReplay(t *testing.T) {
	script, err := defaultScript(300)
	require.NoError(t, err)

	var sent [][]byte
	exchange := func(_ context.Context, chunk []byte) ([]byte, error) {
		sent = append(sent, chunk)
		if len(sent) == 4 {
			return []byte{}, nil
		}
		return rsap.EncodeAll(rsap.NewErrorResp())
	}
	require.NoError(t, replay(context.Background(), exchange, script, time.Second))
	assert.Len(t, sent, len(script))

	failing := func(context.Context, []byte) ([]byte, error) { return nil, errors.New("down") }
	err = replay(context.Background(), failing, script, time.Second)
	assert.ErrorContains(t, err, "CONNECT_REQ")
}

func TestDescribeReply(t *testing.T) {
	reply, err := rsap.EncodeAll(rsap.NewConnectResp(rsap.ConnectionOK), rsap.NewStatusInd(rsap.StatusCardReset))
	require.NoError(t, err)

	lines := describeReply(reply)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "CONNECT_RESP")
	assert.Contains(t, lines[1], "STATUS_IND")

	lines = describeReply(reply[:5])
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "incomplete")
}

func TestHexString(t *testing.T) {
	assert.Equal(t, "00 A4 3F", hexString([]byte{0x00, 0xA4, 0x3F}))
	assert.Equal(t, "", hexString(nil))
}
