package rsap

import "fmt"

// MessageID identifies a protocol message. Values outside 0x00..0x14 are rejected.
type MessageID byte

const (
	ConnectReq                   MessageID = 0x00
	ConnectResp                  MessageID = 0x01
	DisconnectReq                MessageID = 0x02
	DisconnectResp               MessageID = 0x03
	DisconnectInd                MessageID = 0x04
	TransferApduReq              MessageID = 0x05
	TransferApduResp             MessageID = 0x06
	TransferAtrReq               MessageID = 0x07
	TransferAtrResp              MessageID = 0x08
	PowerSimOffReq               MessageID = 0x09
	PowerSimOffResp              MessageID = 0x0A
	PowerSimOnReq                MessageID = 0x0B
	PowerSimOnResp               MessageID = 0x0C
	ResetSimReq                  MessageID = 0x0D
	ResetSimResp                 MessageID = 0x0E
	TransferCardReaderStatusReq  MessageID = 0x0F
	TransferCardReaderStatusResp MessageID = 0x10
	StatusInd                    MessageID = 0x11
	ErrorResp                    MessageID = 0x12
	SetTransportProtocolReq      MessageID = 0x13
	SetTransportProtocolResp     MessageID = 0x14
)

func (id MessageID) String() string {
	switch id {
	case ConnectReq:
		return "CONNECT_REQ"
	case ConnectResp:
		return "CONNECT_RESP"
	case DisconnectReq:
		return "DISCONNECT_REQ"
	case DisconnectResp:
		return "DISCONNECT_RESP"
	case DisconnectInd:
		return "DISCONNECT_IND"
	case TransferApduReq:
		return "TRANSFER_APDU_REQ"
	case TransferApduResp:
		return "TRANSFER_APDU_RESP"
	case TransferAtrReq:
		return "TRANSFER_ATR_REQ"
	case TransferAtrResp:
		return "TRANSFER_ATR_RESP"
	case PowerSimOffReq:
		return "POWER_SIM_OFF_REQ"
	case PowerSimOffResp:
		return "POWER_SIM_OFF_RESP"
	case PowerSimOnReq:
		return "POWER_SIM_ON_REQ"
	case PowerSimOnResp:
		return "POWER_SIM_ON_RESP"
	case ResetSimReq:
		return "RESET_SIM_REQ"
	case ResetSimResp:
		return "RESET_SIM_RESP"
	case TransferCardReaderStatusReq:
		return "TRANSFER_CARD_READER_STATUS_REQ"
	case TransferCardReaderStatusResp:
		return "TRANSFER_CARD_READER_STATUS_RESP"
	case StatusInd:
		return "STATUS_IND"
	case ErrorResp:
		return "ERROR_RESP"
	case SetTransportProtocolReq:
		return "SET_TRANSPORT_PROTOCOL_REQ"
	case SetTransportProtocolResp:
		return "SET_TRANSPORT_PROTOCOL_RESP"
	default:
		return fmt.Sprintf("MessageID(0x%02X)", byte(id))
	}
}

// Valid reports whether id is a defined message identifier.
func (id MessageID) Valid() bool {
	return id <= SetTransportProtocolResp
}

// ParseMessageID converts a wire byte into a MessageID.
func ParseMessageID(b byte) (MessageID, error) {
	id := MessageID(b)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: unknown message id 0x%02X", ErrMalformedFrame, b)
	}
	return id, nil
}

// ParameterID identifies a parameter inside a frame.
type ParameterID byte

const (
	ParamMaxMsgSize        ParameterID = 0x00
	ParamConnectionStatus  ParameterID = 0x01
	ParamResultCode        ParameterID = 0x02
	ParamDisconnectionType ParameterID = 0x03
	ParamCommandAPDU       ParameterID = 0x04
	ParamResponseAPDU      ParameterID = 0x05
	ParamATR               ParameterID = 0x06
	ParamCardReaderStatus  ParameterID = 0x07
	ParamStatusChange      ParameterID = 0x08
	ParamTransportProtocol ParameterID = 0x09
	ParamCommandAPDU7816   ParameterID = 0x10
)

func (id ParameterID) String() string {
	switch id {
	case ParamMaxMsgSize:
		return "MaxMsgSize"
	case ParamConnectionStatus:
		return "ConnectionStatus"
	case ParamResultCode:
		return "ResultCode"
	case ParamDisconnectionType:
		return "DisconnectionType"
	case ParamCommandAPDU:
		return "CommandAPDU"
	case ParamResponseAPDU:
		return "ResponseAPDU"
	case ParamATR:
		return "ATR"
	case ParamCardReaderStatus:
		return "CardReaderStatus"
	case ParamStatusChange:
		return "StatusChange"
	case ParamTransportProtocol:
		return "TransportProtocol"
	case ParamCommandAPDU7816:
		return "CommandAPDU7816"
	default:
		return fmt.Sprintf("ParameterID(0x%02X)", byte(id))
	}
}

// Valid reports whether id is a defined parameter identifier.
func (id ParameterID) Valid() bool {
	return id <= ParamTransportProtocol || id == ParamCommandAPDU7816
}

// ParseParameterID converts a wire byte into a ParameterID.
func ParseParameterID(b byte) (ParameterID, error) {
	id := ParameterID(b)
	if !id.Valid() {
		return 0, fmt.Errorf("%w: unknown parameter id 0x%02X", ErrMalformedFrame, b)
	}
	return id, nil
}

// ResultCode is the value of the ResultCode parameter.
type ResultCode byte

const (
	ResultOK                ResultCode = 0x00
	ResultNoReason          ResultCode = 0x01
	ResultCardNotAccessible ResultCode = 0x02
	ResultCardAlreadyOff    ResultCode = 0x03
	ResultCardRemoved       ResultCode = 0x04
	ResultCardAlreadyOn     ResultCode = 0x05
	ResultDataNotAvailable  ResultCode = 0x06
	ResultNotSupported      ResultCode = 0x07
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultNoReason:
		return "NoReason"
	case ResultCardNotAccessible:
		return "CardNotAccessible"
	case ResultCardAlreadyOff:
		return "CardAlreadyOff"
	case ResultCardRemoved:
		return "CardRemoved"
	case ResultCardAlreadyOn:
		return "CardAlreadyOn"
	case ResultDataNotAvailable:
		return "DataNotAvailable"
	case ResultNotSupported:
		return "NotSupported"
	default:
		return fmt.Sprintf("ResultCode(0x%02X)", byte(c))
	}
}

// ConnectionStatus is the value of the ConnectionStatus parameter.
type ConnectionStatus byte

const (
	ConnectionOK                    ConnectionStatus = 0x00
	ConnectionUnableToEstablish     ConnectionStatus = 0x01
	ConnectionMaxMsgSizeUnsupported ConnectionStatus = 0x02
	ConnectionMaxMsgSizeTooSmall    ConnectionStatus = 0x03
	ConnectionOngoingCall           ConnectionStatus = 0x04
)

// StatusChange is the value of the StatusChange parameter.
type StatusChange byte

const (
	StatusUnknownError      StatusChange = 0x00
	StatusCardReset         StatusChange = 0x01
	StatusCardNotAccessible StatusChange = 0x02
	StatusCardRemoved       StatusChange = 0x03
	StatusCardInserted      StatusChange = 0x04
	StatusCardRecovered     StatusChange = 0x05
)

// DisconnectionType is the value of the DisconnectionType parameter.
type DisconnectionType byte

const (
	DisconnectGraceful  DisconnectionType = 0x00
	DisconnectImmediate DisconnectionType = 0x01
)

// TransportProtocol is the value of the TransportProtocol parameter.
type TransportProtocol byte

const (
	ProtocolT0 TransportProtocol = 0x00
	ProtocolT1 TransportProtocol = 0x01
)

// CardReaderStatus is the bit field carried by the CardReaderStatus parameter.
type CardReaderStatus byte

const (
	ReaderRemovable   CardReaderStatus = 0x08
	ReaderPresent     CardReaderStatus = 0x10
	ReaderID1Size     CardReaderStatus = 0x20
	ReaderCardInside  CardReaderStatus = 0x40
	ReaderCardPowered CardReaderStatus = 0x80
)
