package smpp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrips(t *testing.T) {
	cases := []struct {
		name string
		pdu  *PDU
	}{
		{"bind_transceiver", NewBindTransceiver(7, "gw01", "secret", "SMPP")},
		{"bind_transceiver_resp", NewBindResp(CmdBindTransceiver, 7, StatusOK, "SMSC")},
		{"bind_receiver", &PDU{
			Header: Header{ID: CmdBindReceiver, Sequence: 2},
			Body:   &Bind{SystemID: "rx", Password: "pw", InterfaceVersion: InterfaceVersion, AddrTON: 1, AddrNPI: 1, AddressRange: "^49"},
		}},
		{"submit_sm", NewSubmitSM(99, SubmitSM{shortMessage{
			SourceAddrTON:      1,
			SourceAddrNPI:      1,
			SourceAddr:         "493012345",
			DestAddrTON:        1,
			DestAddrNPI:        1,
			DestAddr:           "491701234567",
			RegisteredDelivery: 1,
			ShortMessage:       []byte("hello world"),
		}})},
		{"submit_sm_resp", NewSubmitSMResp(99, StatusOK, "A1")},
		{"deliver_sm", &PDU{
			Header: Header{ID: CmdDeliverSM, Sequence: 3},
			Body: &DeliverSM{shortMessage{
				SourceAddr:   "500",
				DestAddr:     "600",
				EsmClass:     EsmClassReceipt,
				DataCoding:   0x08,
				ShortMessage: []byte{0x00, 0x68, 0x00, 0x69},
			}},
		}},
		{"deliver_sm_resp", NewDeliverSMResp(3, StatusOK)},
		{"enquire_link", NewEnquireLink(41)},
		{"enquire_link_resp", NewEnquireLinkResp(41)},
		{"unbind", NewUnbind(50)},
		{"unbind_resp", NewUnbindResp(50)},
		{"generic_nack", NewGenericNack(12, StatusInvCmdID)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wire := Encode(tc.pdu)
			decoded, err := Decode(wire)
			require.NoError(t, err)
			assert.Equal(t, tc.pdu.Header, decoded.Header)
			assert.Equal(t, wire, Encode(decoded), "re-encoding must be bit-identical")
		})
	}
}

func TestTLVTailSurvivesRoundTrip(t *testing.T) {
	// receipted_message_id TLV appended after short_message.
	tail := []byte{0x00, 0x1E, 0x00, 0x03, 'A', '1', 0x00}
	p := &PDU{
		Header: Header{ID: CmdDeliverSM, Sequence: 8},
		Body: &DeliverSM{shortMessage{
			SourceAddr:   "100",
			DestAddr:     "200",
			ShortMessage: []byte("id:A1 stat:DELIVRD"),
			Tail:         tail,
		}},
	}
	wire := Encode(p)
	decoded, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, tail, decoded.Body.(*DeliverSM).Tail)
	assert.Equal(t, wire, Encode(decoded))
}

func TestSubmitSMRespOmittedBody(t *testing.T) {
	// A rejected submit often comes back as a bare header.
	frame := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(frame[0:4], HeaderLength)
	binary.BigEndian.PutUint32(frame[4:8], CmdSubmitSMResp)
	binary.BigEndian.PutUint32(frame[8:12], StatusSystemError)
	binary.BigEndian.PutUint32(frame[12:16], 17)

	p, err := Decode(frame)
	require.NoError(t, err)
	resp := p.Body.(*SubmitSMResp)
	assert.True(t, resp.Omitted)
	assert.Equal(t, frame, Encode(p))
}

func TestDecodeRejectsShortCommandLength(t *testing.T) {
	frame := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(frame[0:4], 15)
	_, err := Decode(frame)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRejectsShortCommandLength(t *testing.T) {
	frame := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(frame[0:4], 15)
	binary.BigEndian.PutUint32(frame[4:8], CmdEnquireLink)
	_, err := Read(bytes.NewReader(frame), 0)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestReadRejectsOversizedCommandLength(t *testing.T) {
	frame := make([]byte, HeaderLength)
	binary.BigEndian.PutUint32(frame[0:4], MaxPDULength+1)
	binary.BigEndian.PutUint32(frame[4:8], CmdSubmitSM)
	_, err := Read(bytes.NewReader(frame), 0)
	assert.ErrorIs(t, err, ErrMalformed)

	// A tighter explicit cap applies too.
	binary.BigEndian.PutUint32(frame[0:4], 1024)
	_, err = Read(bytes.NewReader(frame), 512)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnterminatedCStringIsMalformed(t *testing.T) {
	// bind_transceiver whose system_id runs to the end of the body
	// without a NUL.
	body := []byte{'g', 'w', '0', '1'}
	frame := make([]byte, HeaderLength+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)))
	binary.BigEndian.PutUint32(frame[4:8], CmdBindTransceiver)
	binary.BigEndian.PutUint32(frame[12:16], 5)
	copy(frame[HeaderLength:], body)

	_, err := Decode(frame)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestTruncatedShortMessageIsMalformed(t *testing.T) {
	sm := SubmitSM{shortMessage{SourceAddr: "1", DestAddr: "2", ShortMessage: []byte("abc")}}
	wire := Encode(NewSubmitSM(1, sm))
	// Chop one octet off the payload and fix up command_length.
	wire = wire[:len(wire)-1]
	binary.BigEndian.PutUint32(wire[0:4], uint32(len(wire)))
	_, err := Decode(wire)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestUnknownCommandDecodesAsRaw(t *testing.T) {
	body := []byte{0xDE, 0xAD}
	frame := make([]byte, HeaderLength+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(frame)))
	binary.BigEndian.PutUint32(frame[4:8], 0x00000103) // data_sm, unsupported
	binary.BigEndian.PutUint32(frame[12:16], 77)
	copy(frame[HeaderLength:], body)

	p, err := Decode(frame)
	require.NoError(t, err)
	raw, ok := p.Body.(*Raw)
	require.True(t, ok)
	assert.Equal(t, body, raw.Data)
	assert.EqualValues(t, 77, p.Header.Sequence)
	assert.Equal(t, frame, Encode(p))
}

func TestReadFramesBackToBackPDUs(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(Encode(NewEnquireLink(1)))
	stream.Write(Encode(NewSubmitSMResp(2, StatusOK, "B7")))

	first, err := Read(&stream, 0)
	require.NoError(t, err)
	assert.Equal(t, CmdEnquireLink, first.Header.ID)

	second, err := Read(&stream, 0)
	require.NoError(t, err)
	assert.Equal(t, CmdSubmitSMResp, second.Header.ID)
	assert.Equal(t, "B7", second.Body.(*SubmitSMResp).MessageID)
}

func TestStatusAndCommandNames(t *testing.T) {
	assert.Equal(t, "ESME_RBINDFAIL", StatusText(StatusBindFailed))
	assert.Equal(t, "ESME_RINVPASWD", StatusText(StatusInvPasswd))
	assert.Equal(t, "0x000000FF", StatusText(0xFF))
	assert.Equal(t, "deliver_sm", CommandName(CmdDeliverSM))
	assert.Equal(t, "0x00000103", CommandName(0x103))
}
