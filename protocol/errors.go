package protocol

// ErrorCode is the closed fault taxonomy from spec §7. Stable identity
// and ordering matter: log readers key off these values. Zero is
// ErrNone, not an error, matching "error_code() resets to NONE on read".
type ErrorCode int

const (
	ErrNone ErrorCode = iota

	// Transport-level
	ErrRxBufferOverflow
	ErrRspTimedOut

	// Upload-level (SBDWB)
	ErrTxBinDataBadChecksum
	ErrTxBinDataBadSize
	ErrTxBinDataTimeout

	// Session-level (SBDIX codes)
	ErrSBDIGSSTimeout
	ErrSBDIGSSQFull
	ErrSBDIMOSegmentErr
	ErrSBDIIncompleteSession
	ErrSBDISegmentSizeErr
	ErrSBDIGSSAccessDenied
	ErrSBDISBDBlocked
	ErrSBDIISUTimeout
	ErrSBDIRFDrop
	ErrSBDIProtocolErr
	ErrSBDIFail
	ErrSBDINoNetworkService
	ErrSBDIISUBusy

	// Local buffer ops
	ErrClearBufferError
	ErrFileOpenError
	ErrFileReadError
	ErrFileWriteError
	ErrTruncatedFile

	// Registration / signal
	ErrCRegNotRegistered
	ErrCRegSearching
	ErrCRegDenied
	ErrCRegUnknown
	ErrCRegRoaming
	ErrCRegHome
	ErrCSQNoService // level 0 reported
	ErrCSQPollFailed

	// Call state
	ErrCallActive
	ErrCallHeld
	ErrCallDialing
	ErrCallIncoming
	ErrCallWaiting
	ErrCallIdle
	ErrCallInvalid

	// Receive-side
	ErrRxNoMsgWaiting
	ErrRxBadChecksum
	ErrRxBadFileLength

	// Device power
	ErrModemPoweredDown

	// Aux cached state
	ErrAuxRingerOn
	ErrAuxRingerOff
	ErrAuxRelay1On
	ErrAuxRelay1Off
	ErrAuxRelay2On
	ErrAuxRelay2Off

	// Aux protocol faults
	ErrAuxEchoMismatch
	ErrAuxProgManufacturer
	ErrAuxProgFlash
	ErrAuxProgErase
	ErrAuxProgProgram
	ErrAuxProgHWID
)

//nolint:gocyclo
func (e ErrorCode) String() string {
	switch e {
	case ErrNone:
		return "NONE"
	case ErrRxBufferOverflow:
		return "MEC_RX_BUFFER_OVERFLOW"
	case ErrRspTimedOut:
		return "MEC_RSP_TIMED_OUT"
	case ErrTxBinDataBadChecksum:
		return "MEC_TX_BIN_DATA_BAD_CHECKSUM"
	case ErrTxBinDataBadSize:
		return "MEC_TX_BIN_DATA_BAD_SIZE"
	case ErrTxBinDataTimeout:
		return "MEC_TX_BIN_DATA_TIMEOUT"
	case ErrSBDIGSSTimeout:
		return "MEC_SBDI_GSS_TIMEOUT"
	case ErrSBDIGSSQFull:
		return "MEC_SBDI_GSS_Q_FULL"
	case ErrSBDIMOSegmentErr:
		return "MEC_SBDI_MO_SEGMENT_ERR"
	case ErrSBDIIncompleteSession:
		return "MEC_SBDI_INCOMPLETE_SESSION"
	case ErrSBDISegmentSizeErr:
		return "MEC_SBDI_SEGMENT_SIZE_ERR"
	case ErrSBDIGSSAccessDenied:
		return "MEC_SBDI_GSS_ACCESS_DENIED"
	case ErrSBDISBDBlocked:
		return "MEC_SBDI_SBD_BLOCKED"
	case ErrSBDIISUTimeout:
		return "MEC_SBDI_ISU_TIMEOUT"
	case ErrSBDIRFDrop:
		return "MEC_SBDI_RF_DROP"
	case ErrSBDIProtocolErr:
		return "MEC_SBDI_PROTOCOL_ERR"
	case ErrSBDIFail:
		return "MEC_SBDI_FAIL"
	case ErrSBDINoNetworkService:
		return "MEC_SBDI_NO_NETWORK_SERVICE"
	case ErrSBDIISUBusy:
		return "MEC_SBDI_ISU_BUSY"
	case ErrRxNoMsgWaiting:
		return "MEC_RX_NO_MSG_WAITING"
	case ErrRxBadChecksum:
		return "MEC_RX_BAD_CHECKSUM"
	case ErrRxBadFileLength:
		return "MEC_RX_BAD_FILELENGTH"
	case ErrTruncatedFile:
		return "MEC_TRUNCATED_FILE"
	case ErrModemPoweredDown:
		return "MODEM_POWERED_DOWN"
	case ErrCSQNoService:
		return "MEC_CSQ_NO_SERVICE"
	case ErrCSQPollFailed:
		return "MEC_CSQ_POLL_FAILED"
	default:
		return "MEC_UNKNOWN"
	}
}

// sbdixErrorFor maps the numeric SBDIX mo_status to the closed taxonomy,
// per spec §4.1 "SBDIX response parser". ok reports whether moStatus
// represents an MO-SUCCESS class (0..=4).
func sbdixErrorFor(moStatus int) (code ErrorCode, ok bool) {
	switch {
	case moStatus >= 0 && moStatus <= 4:
		return ErrNone, true
	case moStatus == 10:
		return ErrSBDIGSSTimeout, false
	case moStatus == 11:
		return ErrSBDIGSSQFull, false
	case moStatus == 12:
		return ErrSBDIMOSegmentErr, false
	case moStatus == 13:
		return ErrSBDIIncompleteSession, false
	case moStatus == 14:
		return ErrSBDISegmentSizeErr, false
	case moStatus == 15:
		return ErrSBDIGSSAccessDenied, false
	case moStatus == 16:
		return ErrSBDISBDBlocked, false
	case moStatus == 17:
		return ErrSBDIISUTimeout, false
	case moStatus == 18:
		return ErrSBDIRFDrop, false
	case moStatus == 19:
		return ErrSBDIProtocolErr, false
	case moStatus == 32:
		return ErrSBDINoNetworkService, false
	case moStatus == 35:
		return ErrSBDIISUBusy, false
	case (moStatus >= 20 && moStatus <= 31) || moStatus == 33 || moStatus == 34:
		return ErrSBDIFail, false
	default:
		return ErrSBDIFail, false
	}
}
