package smpp

import (
	"bytes"
	"fmt"
)

// Header is the fixed 16-octet SMPP PDU header. Length is recomputed on
// encode; the other three fields are carried as-is.
type Header struct {
	Length   uint32
	ID       uint32
	Status   uint32
	Sequence uint32
}

// Body is the command-specific part of a PDU.
type Body interface {
	marshal(buf *bytes.Buffer)
	unmarshal(data []byte) error
}

// PDU is one SMPP message on the wire.
type PDU struct {
	Header Header
	Body   Body
}

// CommandName returns the SMPP name of this PDU's command.
func (p *PDU) CommandName() string { return CommandName(p.Header.ID) }

// IsResponse reports whether the PDU is a response command.
func (p *PDU) IsResponse() bool { return p.Header.ID&0x80000000 != 0 }

// --- field helpers ---

func writeCString(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(0x00)
}

// readCString consumes a NUL-terminated string from data. A missing
// terminator inside the declared body is a framing error.
func readCString(data []byte) (string, []byte, error) {
	idx := bytes.IndexByte(data, 0x00)
	if idx == -1 {
		return "", nil, fmt.Errorf("%w: unterminated c-octet string", ErrMalformed)
	}
	return string(data[:idx]), data[idx+1:], nil
}

func readByte(data []byte) (byte, []byte, error) {
	if len(data) < 1 {
		return 0, nil, fmt.Errorf("%w: body truncated", ErrMalformed)
	}
	return data[0], data[1:], nil
}

// --- bind family ---

// Bind is the shared body of bind_transmitter, bind_receiver and
// bind_transceiver.
type Bind struct {
	SystemID         string
	Password         string
	SystemType       string
	InterfaceVersion byte
	AddrTON          byte
	AddrNPI          byte
	AddressRange     string
}

func (b *Bind) marshal(buf *bytes.Buffer) {
	writeCString(buf, b.SystemID)
	writeCString(buf, b.Password)
	writeCString(buf, b.SystemType)
	buf.WriteByte(b.InterfaceVersion)
	buf.WriteByte(b.AddrTON)
	buf.WriteByte(b.AddrNPI)
	writeCString(buf, b.AddressRange)
}

func (b *Bind) unmarshal(data []byte) error {
	var err error
	if b.SystemID, data, err = readCString(data); err != nil {
		return err
	}
	if b.Password, data, err = readCString(data); err != nil {
		return err
	}
	if b.SystemType, data, err = readCString(data); err != nil {
		return err
	}
	if b.InterfaceVersion, data, err = readByte(data); err != nil {
		return err
	}
	if b.AddrTON, data, err = readByte(data); err != nil {
		return err
	}
	if b.AddrNPI, data, err = readByte(data); err != nil {
		return err
	}
	if b.AddressRange, _, err = readCString(data); err != nil {
		return err
	}
	return nil
}

// BindResp is the shared body of the three bind_*_resp commands. Some
// peers omit the body entirely on a rejected bind; Omitted preserves that
// shape through a round trip. Tail keeps any optional TLVs verbatim.
type BindResp struct {
	SystemID string
	Omitted  bool
	Tail     []byte
}

func (b *BindResp) marshal(buf *bytes.Buffer) {
	if b.Omitted {
		return
	}
	writeCString(buf, b.SystemID)
	buf.Write(b.Tail)
}

func (b *BindResp) unmarshal(data []byte) error {
	if len(data) == 0 {
		b.Omitted = true
		return nil
	}
	var err error
	if b.SystemID, data, err = readCString(data); err != nil {
		return err
	}
	if len(data) > 0 {
		b.Tail = append([]byte(nil), data...)
	}
	return nil
}

// --- submit_sm / deliver_sm ---

// shortMessage is the shared mandatory-field layout of submit_sm and
// deliver_sm. Octets following short_message (optional TLVs) are kept
// opaque in Tail and re-emitted verbatim.
type shortMessage struct {
	ServiceType          string
	SourceAddrTON        byte
	SourceAddrNPI        byte
	SourceAddr           string
	DestAddrTON          byte
	DestAddrNPI          byte
	DestAddr             string
	EsmClass             byte
	ProtocolID           byte
	PriorityFlag         byte
	ScheduleDeliveryTime string
	ValidityPeriod       string
	RegisteredDelivery   byte
	ReplaceIfPresent     byte
	DataCoding           byte
	SMDefaultMsgID       byte
	ShortMessage         []byte
	Tail                 []byte
}

func (m *shortMessage) marshal(buf *bytes.Buffer) {
	writeCString(buf, m.ServiceType)
	buf.WriteByte(m.SourceAddrTON)
	buf.WriteByte(m.SourceAddrNPI)
	writeCString(buf, m.SourceAddr)
	buf.WriteByte(m.DestAddrTON)
	buf.WriteByte(m.DestAddrNPI)
	writeCString(buf, m.DestAddr)
	buf.WriteByte(m.EsmClass)
	buf.WriteByte(m.ProtocolID)
	buf.WriteByte(m.PriorityFlag)
	writeCString(buf, m.ScheduleDeliveryTime)
	writeCString(buf, m.ValidityPeriod)
	buf.WriteByte(m.RegisteredDelivery)
	buf.WriteByte(m.ReplaceIfPresent)
	buf.WriteByte(m.DataCoding)
	buf.WriteByte(m.SMDefaultMsgID)
	buf.WriteByte(byte(len(m.ShortMessage)))
	buf.Write(m.ShortMessage)
	buf.Write(m.Tail)
}

func (m *shortMessage) unmarshal(data []byte) error {
	var err error
	if m.ServiceType, data, err = readCString(data); err != nil {
		return err
	}
	if m.SourceAddrTON, data, err = readByte(data); err != nil {
		return err
	}
	if m.SourceAddrNPI, data, err = readByte(data); err != nil {
		return err
	}
	if m.SourceAddr, data, err = readCString(data); err != nil {
		return err
	}
	if m.DestAddrTON, data, err = readByte(data); err != nil {
		return err
	}
	if m.DestAddrNPI, data, err = readByte(data); err != nil {
		return err
	}
	if m.DestAddr, data, err = readCString(data); err != nil {
		return err
	}
	if m.EsmClass, data, err = readByte(data); err != nil {
		return err
	}
	if m.ProtocolID, data, err = readByte(data); err != nil {
		return err
	}
	if m.PriorityFlag, data, err = readByte(data); err != nil {
		return err
	}
	if m.ScheduleDeliveryTime, data, err = readCString(data); err != nil {
		return err
	}
	if m.ValidityPeriod, data, err = readCString(data); err != nil {
		return err
	}
	if m.RegisteredDelivery, data, err = readByte(data); err != nil {
		return err
	}
	if m.ReplaceIfPresent, data, err = readByte(data); err != nil {
		return err
	}
	if m.DataCoding, data, err = readByte(data); err != nil {
		return err
	}
	if m.SMDefaultMsgID, data, err = readByte(data); err != nil {
		return err
	}
	var smLen byte
	if smLen, data, err = readByte(data); err != nil {
		return err
	}
	if len(data) < int(smLen) {
		return fmt.Errorf("%w: short_message truncated (sm_length %d, %d octets left)", ErrMalformed, smLen, len(data))
	}
	m.ShortMessage = append([]byte(nil), data[:smLen]...)
	if rest := data[smLen:]; len(rest) > 0 {
		m.Tail = append([]byte(nil), rest...)
	}
	return nil
}

// SubmitSM is the MT short-message body.
type SubmitSM struct {
	shortMessage
}

// DeliverSM is the MO short-message / delivery-receipt body.
type DeliverSM struct {
	shortMessage
}

// IsReceipt reports whether the deliver_sm carries a delivery receipt.
func (d *DeliverSM) IsReceipt() bool { return d.EsmClass&EsmClassReceipt != 0 }

// --- submit_sm_resp / deliver_sm_resp ---

// SubmitSMResp carries the SMSC-assigned message id. Peers commonly omit
// the body when the submit was rejected; Omitted preserves that.
type SubmitSMResp struct {
	MessageID string
	Omitted   bool
}

func (r *SubmitSMResp) marshal(buf *bytes.Buffer) {
	if r.Omitted {
		return
	}
	writeCString(buf, r.MessageID)
}

func (r *SubmitSMResp) unmarshal(data []byte) error {
	if len(data) == 0 {
		r.Omitted = true
		return nil
	}
	var err error
	r.MessageID, _, err = readCString(data)
	return err
}

// DeliverSMResp acknowledges a deliver_sm; message_id is unused per the
// spec and set to the empty string.
type DeliverSMResp struct {
	MessageID string
	Omitted   bool
}

func (r *DeliverSMResp) marshal(buf *bytes.Buffer) {
	if r.Omitted {
		return
	}
	writeCString(buf, r.MessageID)
}

func (r *DeliverSMResp) unmarshal(data []byte) error {
	if len(data) == 0 {
		r.Omitted = true
		return nil
	}
	var err error
	r.MessageID, _, err = readCString(data)
	return err
}

// --- bodyless commands ---

// Empty is the body of unbind, unbind_resp, enquire_link,
// enquire_link_resp and generic_nack.
type Empty struct{}

func (e *Empty) marshal(*bytes.Buffer) {}

func (e *Empty) unmarshal(data []byte) error {
	if len(data) != 0 {
		return fmt.Errorf("%w: unexpected %d-octet body on bodyless command", ErrMalformed, len(data))
	}
	return nil
}

// Raw is the body of any command id this gateway does not implement. The
// frame is kept intact so the session layer can nack it and move on.
type Raw struct {
	Data []byte
}

func (r *Raw) marshal(buf *bytes.Buffer) { buf.Write(r.Data) }

func (r *Raw) unmarshal(data []byte) error {
	if len(data) > 0 {
		r.Data = append([]byte(nil), data...)
	}
	return nil
}

// --- builders ---

// NewBindTransceiver builds the bind this gateway issues to upstream peers.
func NewBindTransceiver(seq uint32, systemID, password, systemType string) *PDU {
	return &PDU{
		Header: Header{ID: CmdBindTransceiver, Sequence: seq},
		Body: &Bind{
			SystemID:         systemID,
			Password:         password,
			SystemType:       systemType,
			InterfaceVersion: InterfaceVersion,
		},
	}
}

// NewBindResp builds the response for any of the three bind commands.
func NewBindResp(bindCmdID, seq, status uint32, systemID string) *PDU {
	return &PDU{
		Header: Header{ID: bindCmdID | 0x80000000, Sequence: seq, Status: status},
		Body:   &BindResp{SystemID: systemID},
	}
}

// NewSubmitSM builds a submit_sm with the given addressing and payload.
func NewSubmitSM(seq uint32, sm SubmitSM) *PDU {
	return &PDU{Header: Header{ID: CmdSubmitSM, Sequence: seq}, Body: &sm}
}

// NewSubmitSMResp builds a submit_sm_resp.
func NewSubmitSMResp(seq, status uint32, messageID string) *PDU {
	return &PDU{
		Header: Header{ID: CmdSubmitSMResp, Sequence: seq, Status: status},
		Body:   &SubmitSMResp{MessageID: messageID},
	}
}

// NewDeliverSMResp acknowledges a deliver_sm with the given status.
func NewDeliverSMResp(seq, status uint32) *PDU {
	return &PDU{
		Header: Header{ID: CmdDeliverSMResp, Sequence: seq, Status: status},
		Body:   &DeliverSMResp{},
	}
}

// NewEnquireLink builds a keepalive probe.
func NewEnquireLink(seq uint32) *PDU {
	return &PDU{Header: Header{ID: CmdEnquireLink, Sequence: seq}, Body: &Empty{}}
}

// NewEnquireLinkResp answers a keepalive, echoing its sequence number.
func NewEnquireLinkResp(seq uint32) *PDU {
	return &PDU{Header: Header{ID: CmdEnquireLinkResp, Sequence: seq}, Body: &Empty{}}
}

// NewUnbind builds an unbind request.
func NewUnbind(seq uint32) *PDU {
	return &PDU{Header: Header{ID: CmdUnbind, Sequence: seq}, Body: &Empty{}}
}

// NewUnbindResp acknowledges an unbind.
func NewUnbindResp(seq uint32) *PDU {
	return &PDU{Header: Header{ID: CmdUnbindResp, Sequence: seq}, Body: &Empty{}}
}

// NewGenericNack builds a generic_nack echoing the offending sequence.
func NewGenericNack(seq, status uint32) *PDU {
	return &PDU{Header: Header{ID: CmdGenericNack, Sequence: seq, Status: status}, Body: &Empty{}}
}
