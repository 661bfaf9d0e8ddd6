package card

import "fmt"

// StatusWord is the two-byte status (SW1-SW2) ending every card response.
type StatusWord uint16

func NewStatusWord(sw1, sw2 byte) StatusWord {
	return StatusWord(uint16(sw1)<<8 | uint16(sw2))
}

func (sw StatusWord) SW1() byte { return byte(sw >> 8) }
func (sw StatusWord) SW2() byte { return byte(sw) }

// Standard status words seen while relaying SIM traffic.
const (
	SWNoError              StatusWord = 0x9000
	SWWrongLength          StatusWord = 0x6700
	SWSecurityNotSatisfied StatusWord = 0x6982
	SWFileNotFound         StatusWord = 0x6A82
	SWRecordNotFound       StatusWord = 0x6A83
	SWWrongP1P2            StatusWord = 0x6B00
	SWInsNotSupported      StatusWord = 0x6D00
	SWClaNotSupported      StatusWord = 0x6E00
	SWUnknown              StatusWord = 0x6F00
)

// IsSuccess reports 9000, 61XX, and the GSM 9FXX "response available" variant.
func (sw StatusWord) IsSuccess() bool {
	return sw == SWNoError || sw.SW1() == 0x61 || sw.SW1() == 0x9F
}

// IsWarning reports 62XX and 63XX.
func (sw StatusWord) IsWarning() bool {
	sw1 := sw.SW1()
	return sw1 == 0x62 || sw1 == 0x63
}

// IsError reports execution and checking errors, 64XX to 6FXX.
func (sw StatusWord) IsError() bool {
	sw1 := sw.SW1()
	return sw1 >= 0x64 && sw1 <= 0x6F
}

// Verbose returns a human-readable description for logs.
func (sw StatusWord) Verbose() string {
	sw1, sw2 := sw.SW1(), sw.SW2()
	switch {
	case sw1 == 0x61:
		return fmt.Sprintf("[%04X] Process completed, %d bytes available", uint16(sw), sw2)
	case sw1 == 0x9F:
		return fmt.Sprintf("[%04X] Command successful, %d bytes available", uint16(sw), sw2)
	case sw1 == 0x6C:
		return fmt.Sprintf("[%04X] Wrong length, correct Le is %d", uint16(sw), sw2)
	}

	switch sw {
	case SWNoError:
		return "[9000] No error"
	case SWWrongLength:
		return "[6700] Wrong length"
	case SWSecurityNotSatisfied:
		return "[6982] Security status not satisfied"
	case SWFileNotFound:
		return "[6A82] File not found"
	case SWRecordNotFound:
		return "[6A83] Record not found"
	case SWWrongP1P2:
		return "[6B00] Wrong parameters P1-P2"
	case SWInsNotSupported:
		return "[6D00] Instruction not supported"
	case SWClaNotSupported:
		return "[6E00] Class not supported"
	}

	switch sw1 {
	case 0x62:
		return fmt.Sprintf("[%04X] Warning: NV memory unchanged", uint16(sw))
	case 0x63:
		return fmt.Sprintf("[%04X] Warning: NV memory changed", uint16(sw))
	case 0x64, 0x65:
		return fmt.Sprintf("[%04X] Execution error", uint16(sw))
	case 0x68, 0x69, 0x6A:
		return fmt.Sprintf("[%04X] Checking error", uint16(sw))
	default:
		return fmt.Sprintf("[%04X] Unknown status", uint16(sw))
	}
}
