package card

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// DescribeData renders response data as a BER-TLV tree, one tag per line.
// Data that is not valid BER-TLV is rendered as plain hex.
func DescribeData(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	tlvs, err := bertlv.Decode(data)
	if err != nil || len(tlvs) == 0 {
		return strings.ToUpper(hex.EncodeToString(data))
	}
	var sb strings.Builder
	writeTLVs(&sb, tlvs, 0)
	return strings.TrimSuffix(sb.String(), "\n")
}

func writeTLVs(sb *strings.Builder, tlvs []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, t := range tlvs {
		if len(t.TLVs) > 0 {
			fmt.Fprintf(sb, "%s%s\n", indent, t.Tag)
			writeTLVs(sb, t.TLVs, depth+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s: %s\n", indent, t.Tag, strings.ToUpper(hex.EncodeToString(t.Value)))
	}
}
