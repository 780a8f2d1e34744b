package smpp

// SMPP v3.4 command IDs (subset this gateway speaks).
const (
	CmdBindReceiver        uint32 = 0x00000001
	CmdBindTransmitter     uint32 = 0x00000002
	CmdBindTransceiver     uint32 = 0x00000009
	CmdSubmitSM            uint32 = 0x00000004
	CmdDeliverSM           uint32 = 0x00000005
	CmdUnbind              uint32 = 0x00000006
	CmdEnquireLink         uint32 = 0x00000015
	CmdGenericNack         uint32 = 0x80000000
	CmdBindReceiverResp    uint32 = 0x80000001
	CmdBindTransmitterResp uint32 = 0x80000002
	CmdBindTransceiverResp uint32 = 0x80000009
	CmdSubmitSMResp        uint32 = 0x80000004
	CmdDeliverSMResp       uint32 = 0x80000005
	CmdUnbindResp          uint32 = 0x80000006
	CmdEnquireLinkResp     uint32 = 0x80000015
)

// SMPP command status codes (subset needed).
const (
	StatusOK          uint32 = 0x00000000 // ESME_ROK
	StatusInvMsgLen   uint32 = 0x00000001 // ESME_RINVMSGLEN
	StatusInvCmdID    uint32 = 0x00000003 // ESME_RINVCMDID
	StatusInvBndSts   uint32 = 0x00000004 // ESME_RINVBNDSTS
	StatusSystemError uint32 = 0x00000008 // ESME_RSYSERR
	StatusInvSrcAddr  uint32 = 0x0000000A // ESME_RINVSRCADR
	StatusInvDstAddr  uint32 = 0x0000000B // ESME_RINVDSTADR
	StatusBindFailed  uint32 = 0x0000000D // ESME_RBINDFAIL
	StatusInvPasswd   uint32 = 0x0000000E // ESME_RINVPASWD
	StatusInvSysID    uint32 = 0x0000000F // ESME_RINVSYSID
	StatusThrottled   uint32 = 0x00000058 // ESME_RTHROTTLED
)

// InterfaceVersion is the SMPP interface version sent in binds.
const InterfaceVersion byte = 0x34

// EsmClassReceipt is the esm_class bit marking a delivery receipt
// inside a deliver_sm (SMC Delivery Receipt, bit 2).
const EsmClassReceipt byte = 0x04

// HeaderLength is the fixed PDU header size in octets.
const HeaderLength = 16

// MaxPDULength is the default cap on command_length accepted on ingress.
// Anything larger is treated as a malformed frame.
const MaxPDULength uint32 = 64 * 1024

// MaxSequence is the largest usable sequence number; counters wrap to 1.
const MaxSequence uint32 = 0x7FFFFFFF

var statusNames = map[uint32]string{
	StatusOK:          "ESME_ROK",
	StatusInvMsgLen:   "ESME_RINVMSGLEN",
	StatusInvCmdID:    "ESME_RINVCMDID",
	StatusInvBndSts:   "ESME_RINVBNDSTS",
	StatusSystemError: "ESME_RSYSERR",
	StatusInvSrcAddr:  "ESME_RINVSRCADR",
	StatusInvDstAddr:  "ESME_RINVDSTADR",
	StatusBindFailed:  "ESME_RBINDFAIL",
	StatusInvPasswd:   "ESME_RINVPASWD",
	StatusInvSysID:    "ESME_RINVSYSID",
	StatusThrottled:   "ESME_RTHROTTLED",
}

var commandNames = map[uint32]string{
	CmdBindReceiver:        "bind_receiver",
	CmdBindTransmitter:     "bind_transmitter",
	CmdBindTransceiver:     "bind_transceiver",
	CmdSubmitSM:            "submit_sm",
	CmdDeliverSM:           "deliver_sm",
	CmdUnbind:              "unbind",
	CmdEnquireLink:         "enquire_link",
	CmdGenericNack:         "generic_nack",
	CmdBindReceiverResp:    "bind_receiver_resp",
	CmdBindTransmitterResp: "bind_transmitter_resp",
	CmdBindTransceiverResp: "bind_transceiver_resp",
	CmdSubmitSMResp:        "submit_sm_resp",
	CmdDeliverSMResp:       "deliver_sm_resp",
	CmdUnbindResp:          "unbind_resp",
	CmdEnquireLinkResp:     "enquire_link_resp",
}

// StatusText returns the symbolic name for an SMPP command status,
// or a hex rendering for codes outside the known set.
func StatusText(status uint32) string {
	if name, ok := statusNames[status]; ok {
		return name
	}
	return hexCode(status)
}

// CommandName returns the SMPP name of a command id, or a hex rendering
// for ids this gateway does not speak.
func CommandName(id uint32) string {
	if name, ok := commandNames[id]; ok {
		return name
	}
	return hexCode(id)
}

func hexCode(v uint32) string {
	const digits = "0123456789ABCDEF"
	out := []byte("0x00000000")
	for i := 0; i < 8; i++ {
		out[9-i] = digits[v&0xF]
		v >>= 4
	}
	return string(out)
}
