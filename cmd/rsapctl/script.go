package main

import (
	"github.com/younglifestyle/rsap4go/rsap"
)

type step struct {
	name  string
	chunk []byte
}

// apduHeader opens a TRANSFER_APDU_REQ frame with one CommandAPDU parameter;
// the length byte and value follow.
var apduHeader = []byte{0x05, 0x01, 0x00, 0x00, 0x04, 0x00, 0x00}

func apduChunk(length byte, body ...byte) []byte {
	out := append(append([]byte{}, apduHeader...), length)
	return append(out, body...)
}

// defaultScript walks a SIM through connect, ATR and a few file commands,
// splitting two of the frames across chunks.
func defaultScript(maxMsgSize uint16) ([]step, error) {
	connect, err := rsap.Encode(rsap.NewConnectReq(maxMsgSize))
	if err != nil {
		return nil, err
	}
	atr, err := rsap.Encode(rsap.NewAtrReq())
	if err != nil {
		return nil, err
	}

	return []step{
		{"CONNECT_REQ", connect},
		{"TRANSFER_ATR_REQ", atr},
		{"SELECT MF", apduChunk(7, 0x00, 0xA4, 0x00, 0x04, 0x02, 0x3F, 0x00, 0x00)},
		{"SELECT EF_ICCID (1/2)", apduChunk(7, 0x00, 0xA4)},
		{"SELECT EF_ICCID (2/2)", []byte{0x08, 0x04, 0x02, 0x2F, 0xE2, 0x00}},
		{"READ BINARY", apduChunk(5, 0x00, 0xB0, 0x00, 0x00, 0x0A, 0x00, 0x00, 0x00)},
		{"TERMINAL PROFILE (1/2)", apduChunk(25, 0x80, 0x10, 0x00, 0x00, 0x14, 0xFF, 0x9F)},
		{"TERMINAL PROFILE (2/2)", []byte{
			0xFF, 0xFF, 0x7F, 0x9F, 0x00, 0xDF, 0xFF, 0x03, 0x07,
			0x1F, 0x00, 0x08, 0x0C, 0x06, 0x00, 0xEB, 0x0E, 0x03,
			0x00, 0x00, 0x00,
		}},
	}, nil
}
