package smpp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed marks frames that violate SMPP framing: a command_length
// below the header size or above the configured cap, or a body whose
// C-octet strings or octet counts do not fit the declared length.
var ErrMalformed = errors.New("malformed PDU")

// Encode serializes a PDU, recomputing command_length.
func Encode(p *PDU) []byte {
	var body bytes.Buffer
	if p.Body != nil {
		p.Body.marshal(&body)
	}
	p.Header.Length = uint32(HeaderLength + body.Len())

	out := make([]byte, p.Header.Length)
	binary.BigEndian.PutUint32(out[0:4], p.Header.Length)
	binary.BigEndian.PutUint32(out[4:8], p.Header.ID)
	binary.BigEndian.PutUint32(out[8:12], p.Header.Status)
	binary.BigEndian.PutUint32(out[12:16], p.Header.Sequence)
	copy(out[HeaderLength:], body.Bytes())
	return out
}

// Decode parses one complete frame. The slice must hold exactly the
// octets announced by command_length.
func Decode(frame []byte) (*PDU, error) {
	if len(frame) < HeaderLength {
		return nil, fmt.Errorf("%w: %d octets is below the header size", ErrMalformed, len(frame))
	}
	hdr := Header{
		Length:   binary.BigEndian.Uint32(frame[0:4]),
		ID:       binary.BigEndian.Uint32(frame[4:8]),
		Status:   binary.BigEndian.Uint32(frame[8:12]),
		Sequence: binary.BigEndian.Uint32(frame[12:16]),
	}
	if hdr.Length < HeaderLength {
		return nil, fmt.Errorf("%w: command_length %d below header size", ErrMalformed, hdr.Length)
	}
	if uint32(len(frame)) != hdr.Length {
		return nil, fmt.Errorf("%w: frame is %d octets, command_length says %d", ErrMalformed, len(frame), hdr.Length)
	}

	body := newBody(hdr.ID)
	if err := body.unmarshal(frame[HeaderLength:]); err != nil {
		return nil, fmt.Errorf("%s: %w", CommandName(hdr.ID), err)
	}
	return &PDU{Header: hdr, Body: body}, nil
}

// Read frames and decodes the next PDU from the stream. maxLen caps the
// accepted command_length; pass 0 for the default. Framing violations
// return ErrMalformed and leave the stream unusable.
func Read(r io.Reader, maxLen uint32) (*PDU, error) {
	if maxLen == 0 {
		maxLen = MaxPDULength
	}
	hdr := make([]byte, HeaderLength)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[0:4])
	if length < HeaderLength {
		return nil, fmt.Errorf("%w: command_length %d below header size", ErrMalformed, length)
	}
	if length > maxLen {
		return nil, fmt.Errorf("%w: command_length %d exceeds cap %d", ErrMalformed, length, maxLen)
	}

	frame := make([]byte, length)
	copy(frame, hdr)
	if length > HeaderLength {
		if _, err := io.ReadFull(r, frame[HeaderLength:]); err != nil {
			return nil, fmt.Errorf("reading %d-octet body: %w", length-HeaderLength, err)
		}
	}
	return Decode(frame)
}

func newBody(commandID uint32) Body {
	switch commandID {
	case CmdBindReceiver, CmdBindTransmitter, CmdBindTransceiver:
		return &Bind{}
	case CmdBindReceiverResp, CmdBindTransmitterResp, CmdBindTransceiverResp:
		return &BindResp{}
	case CmdSubmitSM:
		return &SubmitSM{}
	case CmdSubmitSMResp:
		return &SubmitSMResp{}
	case CmdDeliverSM:
		return &DeliverSM{}
	case CmdDeliverSMResp:
		return &DeliverSMResp{}
	case CmdUnbind, CmdUnbindResp, CmdEnquireLink, CmdEnquireLinkResp, CmdGenericNack:
		return &Empty{}
	default:
		return &Raw{}
	}
}
