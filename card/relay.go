package card

import (
	"fmt"
)

// INS byte of GET RESPONSE.
const insGetResponse = 0xC0

// GetResponse builds the GET RESPONSE command retrieving le pending bytes.
func GetResponse(le byte) []byte {
	return []byte{0x00, insGetResponse, 0x00, 0x00, le}
}

// Relay transmits apdu and returns the card's answer with its status word
// appended. When the card reports pending bytes (SW1=0x61) exactly one
// GET RESPONSE is issued and its answer is returned instead.
func Relay(c Card, apdu []byte) ([]byte, error) {
	body, sw1, sw2, err := c.Transmit(apdu)
	if err != nil {
		return nil, fmt.Errorf("transmit: %w", err)
	}

	if sw1 == 0x61 {
		body, sw1, sw2, err = c.Transmit(GetResponse(sw2))
		if err != nil {
			return nil, fmt.Errorf("get response: %w", err)
		}
	}

	out := make([]byte, 0, len(body)+2)
	out = append(out, body...)
	return append(out, sw1, sw2), nil
}
