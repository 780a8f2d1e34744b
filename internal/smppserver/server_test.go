package smppserver

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teleforge/smppgw/internal/auth"
	"github.com/teleforge/smppgw/internal/config"
	"github.com/teleforge/smppgw/internal/egress"
	"github.com/teleforge/smppgw/pkg/smpp"
)

type stubForwarder struct {
	mu   sync.Mutex
	msgs []egress.Message
	err  error
}

func (f *stubForwarder) Forward(_ context.Context, m egress.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, m)
	return f.err
}

func (f *stubForwarder) messages() []egress.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]egress.Message(nil), f.msgs...)
}

func startServer(t *testing.T, fw Forwarder) *Server {
	t.Helper()

	cfg := config.Server{BindIP: "127.0.0.1", Port: 0}
	creds := auth.NewStore([]config.Credential{{SystemID: "esme1", Password: "pw1"}})
	srv := NewServer(cfg, creds, fw, 0)
	require.NoError(t, srv.Listen())
	go func() { _ = srv.Serve() }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dialServer(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func bindTransceiver(t *testing.T, conn net.Conn, systemID, password string) *smpp.PDU {
	t.Helper()
	req := &smpp.PDU{
		Header: smpp.Header{ID: smpp.CmdBindTransceiver, Sequence: 1},
		Body:   &smpp.Bind{SystemID: systemID, Password: password, InterfaceVersion: smpp.InterfaceVersion},
	}
	_, err := conn.Write(smpp.Encode(req))
	require.NoError(t, err)

	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	require.Equal(t, smpp.CmdBindTransceiverResp, resp.Header.ID)
	return resp
}

func TestBindSuccess(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)

	resp := bindTransceiver(t, conn, "esme1", "pw1")
	assert.Equal(t, smpp.StatusOK, resp.Header.Status)
	assert.Equal(t, ServerSystemID, resp.Body.(*smpp.BindResp).SystemID)
}

func TestBindRejectionClosesConnection(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)

	resp := bindTransceiver(t, conn, "bad", "creds")
	assert.Equal(t, smpp.StatusBindFailed, resp.Header.Status)

	// The server closes the TCP connection after the rejection.
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := smpp.Read(conn, 0)
	assert.True(t, errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF),
		"expected EOF after rejected bind, got %v", err)
}

func TestSubmitSMForwardsAndAcks(t *testing.T) {
	fw := &stubForwarder{}
	srv := startServer(t, fw)
	conn := dialServer(t, srv)
	bindTransceiver(t, conn, "esme1", "pw1")

	sub := &smpp.PDU{Header: smpp.Header{ID: smpp.CmdSubmitSM, Sequence: 2}, Body: &smpp.SubmitSM{}}
	sm := sub.Body.(*smpp.SubmitSM)
	sm.SourceAddr, sm.DestAddr, sm.ShortMessage = "111", "222", []byte("hi there")
	_, err := conn.Write(smpp.Encode(sub))
	require.NoError(t, err)

	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdSubmitSMResp, resp.Header.ID)
	assert.EqualValues(t, 2, resp.Header.Sequence)
	assert.Equal(t, smpp.StatusOK, resp.Header.Status)
	assert.True(t, strings.HasPrefix(resp.Body.(*smpp.SubmitSMResp).MessageID, "msg-"),
		"message id should be locally generated, got %q", resp.Body.(*smpp.SubmitSMResp).MessageID)

	msgs := fw.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "111", msgs[0].From)
	assert.Equal(t, "222", msgs[0].To)
	assert.Equal(t, []byte("hi there"), msgs[0].Short)
}

func TestSubmitSMEgressFailureAnswersSystemError(t *testing.T) {
	fw := &stubForwarder{err: egress.ErrEgressFailed}
	srv := startServer(t, fw)
	conn := dialServer(t, srv)
	bindTransceiver(t, conn, "esme1", "pw1")

	sub := &smpp.PDU{Header: smpp.Header{ID: smpp.CmdSubmitSM, Sequence: 3}, Body: &smpp.SubmitSM{}}
	_, err := conn.Write(smpp.Encode(sub))
	require.NoError(t, err)

	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.StatusSystemError, resp.Header.Status)
}

func TestSubmitSMBeforeBindIsNacked(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)

	sub := &smpp.PDU{Header: smpp.Header{ID: smpp.CmdSubmitSM, Sequence: 9}, Body: &smpp.SubmitSM{}}
	_, err := conn.Write(smpp.Encode(sub))
	require.NoError(t, err)

	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.ID)
	assert.EqualValues(t, 9, resp.Header.Sequence)
	assert.Equal(t, smpp.StatusInvBndSts, resp.Header.Status)

	// The connection survives the nack.
	resp = bindTransceiver(t, conn, "esme1", "pw1")
	assert.Equal(t, smpp.StatusOK, resp.Header.Status)
}

func TestSubmitSMOnReceiverBindIsNacked(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)

	req := &smpp.PDU{
		Header: smpp.Header{ID: smpp.CmdBindReceiver, Sequence: 1},
		Body:   &smpp.Bind{SystemID: "esme1", Password: "pw1", InterfaceVersion: smpp.InterfaceVersion},
	}
	_, err := conn.Write(smpp.Encode(req))
	require.NoError(t, err)
	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	require.Equal(t, smpp.CmdBindReceiverResp, resp.Header.ID)
	require.Equal(t, smpp.StatusOK, resp.Header.Status)

	sub := &smpp.PDU{Header: smpp.Header{ID: smpp.CmdSubmitSM, Sequence: 5}, Body: &smpp.SubmitSM{}}
	_, err = conn.Write(smpp.Encode(sub))
	require.NoError(t, err)

	resp, err = smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.ID)
	assert.Equal(t, smpp.StatusInvBndSts, resp.Header.Status)
}

func TestEnquireLinkAndUnbind(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)
	bindTransceiver(t, conn, "esme1", "pw1")

	_, err := conn.Write(smpp.Encode(smpp.NewEnquireLink(4)))
	require.NoError(t, err)
	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdEnquireLinkResp, resp.Header.ID)
	assert.EqualValues(t, 4, resp.Header.Sequence)

	_, err = conn.Write(smpp.Encode(smpp.NewUnbind(5)))
	require.NoError(t, err)
	resp, err = smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdUnbindResp, resp.Header.ID)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = smpp.Read(conn, 0)
	assert.Error(t, err, "connection should close after unbind")
}

func TestUnknownCommandGetsGenericNack(t *testing.T) {
	srv := startServer(t, &stubForwarder{})
	conn := dialServer(t, srv)
	bindTransceiver(t, conn, "esme1", "pw1")

	unknown := &smpp.PDU{Header: smpp.Header{ID: 0x00000103, Sequence: 21}, Body: &smpp.Raw{}}
	_, err := conn.Write(smpp.Encode(unknown))
	require.NoError(t, err)

	resp, err := smpp.Read(conn, 0)
	require.NoError(t, err)
	assert.Equal(t, smpp.CmdGenericNack, resp.Header.ID)
	assert.EqualValues(t, 21, resp.Header.Sequence)
}
