package rsap

import "encoding/binary"

func byteParam(id ParameterID, v byte) Parameter {
	return Parameter{ID: id, Value: []byte{v}}
}

func uint16Param(id ParameterID, v uint16) Parameter {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return Parameter{ID: id, Value: b}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// NewConnectResp builds CONNECT_RESP carrying a single ConnectionStatus.
func NewConnectResp(status ConnectionStatus) Frame {
	return Frame{
		MessageID:  ConnectResp,
		Parameters: []Parameter{byteParam(ParamConnectionStatus, byte(status))},
	}
}

// NewConnectRespWithMaxMsgSize builds CONNECT_RESP advertising the server's MaxMsgSize,
// used when the client's proposal is rejected.
func NewConnectRespWithMaxMsgSize(status ConnectionStatus, maxMsgSize uint16) Frame {
	f := NewConnectResp(status)
	f.Parameters = append(f.Parameters, uint16Param(ParamMaxMsgSize, maxMsgSize))
	return f
}

// NewStatusInd builds STATUS_IND carrying a single StatusChange.
func NewStatusInd(change StatusChange) Frame {
	return Frame{
		MessageID:  StatusInd,
		Parameters: []Parameter{byteParam(ParamStatusChange, byte(change))},
	}
}

// NewAtrResp builds TRANSFER_ATR_RESP: ResultCode OK, then the ATR.
func NewAtrResp(atr []byte) Frame {
	return Frame{
		MessageID: TransferAtrResp,
		Parameters: []Parameter{
			byteParam(ParamResultCode, byte(ResultOK)),
			{ID: ParamATR, Value: cloneBytes(atr)},
		},
	}
}

// NewApduResp builds TRANSFER_APDU_RESP: ResultCode, then the response APDU
// including its status word.
func NewApduResp(code ResultCode, apdu []byte) Frame {
	return Frame{
		MessageID: TransferApduResp,
		Parameters: []Parameter{
			byteParam(ParamResultCode, byte(code)),
			{ID: ParamResponseAPDU, Value: cloneBytes(apdu)},
		},
	}
}

// NewErrorResp builds ERROR_RESP, which has no parameters.
func NewErrorResp() Frame {
	return Frame{MessageID: ErrorResp}
}

func NewDisconnectResp() Frame {
	return Frame{MessageID: DisconnectResp}
}

// NewDisconnectInd builds DISCONNECT_IND with the given disconnection type.
func NewDisconnectInd(t DisconnectionType) Frame {
	return Frame{
		MessageID:  DisconnectInd,
		Parameters: []Parameter{byteParam(ParamDisconnectionType, byte(t))},
	}
}

func resultOnly(id MessageID, code ResultCode) Frame {
	return Frame{
		MessageID:  id,
		Parameters: []Parameter{byteParam(ParamResultCode, byte(code))},
	}
}

func NewResetSimResp(code ResultCode) Frame    { return resultOnly(ResetSimResp, code) }
func NewPowerSimOffResp(code ResultCode) Frame { return resultOnly(PowerSimOffResp, code) }
func NewPowerSimOnResp(code ResultCode) Frame  { return resultOnly(PowerSimOnResp, code) }

func NewSetTransportProtocolResp(code ResultCode) Frame {
	return resultOnly(SetTransportProtocolResp, code)
}

// NewCardReaderStatusResp builds TRANSFER_CARD_READER_STATUS_RESP. The status
// parameter is only present when code is ResultOK.
func NewCardReaderStatusResp(code ResultCode, status CardReaderStatus) Frame {
	f := resultOnly(TransferCardReaderStatusResp, code)
	if code == ResultOK {
		f.Parameters = append(f.Parameters, byteParam(ParamCardReaderStatus, byte(status)))
	}
	return f
}

// Request builders, used by peers and tests.

func NewConnectReq(maxMsgSize uint16) Frame {
	return Frame{
		MessageID:  ConnectReq,
		Parameters: []Parameter{uint16Param(ParamMaxMsgSize, maxMsgSize)},
	}
}

func NewAtrReq() Frame         { return Frame{MessageID: TransferAtrReq} }
func NewDisconnectReq() Frame  { return Frame{MessageID: DisconnectReq} }
func NewResetSimReq() Frame    { return Frame{MessageID: ResetSimReq} }
func NewPowerSimOffReq() Frame { return Frame{MessageID: PowerSimOffReq} }
func NewPowerSimOnReq() Frame  { return Frame{MessageID: PowerSimOnReq} }

func NewCardReaderStatusReq() Frame {
	return Frame{MessageID: TransferCardReaderStatusReq}
}

func NewApduReq(apdu []byte) Frame {
	return Frame{
		MessageID:  TransferApduReq,
		Parameters: []Parameter{{ID: ParamCommandAPDU, Value: cloneBytes(apdu)}},
	}
}

func NewSetTransportProtocolReq(p TransportProtocol) Frame {
	return Frame{
		MessageID:  SetTransportProtocolReq,
		Parameters: []Parameter{byteParam(ParamTransportProtocol, byte(p))},
	}
}
