package mail

import (
	"bufio"
	"context"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/contacts-api/config"
)

// fakeSMTP accepts a single session and records the envelope and data.
type fakeSMTP struct {
	ln   net.Listener
	wg   sync.WaitGroup
	from string
	rcpt string
	data string
}

func startFakeSMTP(t *testing.T) *fakeSMTP {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTP{ln: ln}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return s
}

func (s *fakeSMTP) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *fakeSMTP) serve() {
	defer s.wg.Done()
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	tp := textproto.NewConn(conn)
	reply := func(line string) { _ = tp.PrintfLine("%s", line) }

	reply("220 localhost ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		cmd := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM:"):
			s.from = strings.Trim(line[len("MAIL FROM:"):], "<> ")
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO:"):
			s.rcpt = strings.Trim(line[len("RCPT TO:"):], "<> ")
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var sb strings.Builder
			r := bufio.NewReader(tp.DotReader())
			for {
				chunk, err := r.ReadString('\n')
				sb.WriteString(chunk)
				if err != nil {
					break
				}
			}
			s.data = sb.String()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPSender_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	sender := NewSMTPSender(&config.SMTPConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"})

	err := sender.Send(context.Background(), Message{To: "alice@example.com", Subject: "Hi", Body: "line one\nline two"})
	require.NoError(t, err)
	srv.wg.Wait()

	assert.Equal(t, "noreply@example.com", srv.from)
	assert.Equal(t, "alice@example.com", srv.rcpt)
	assert.Contains(t, srv.data, "Subject: Hi")
	assert.Contains(t, srv.data, "To: alice@example.com")
	assert.Contains(t, srv.data, "line one\nline two")
}

func TestSMTPSender_RejectsHeaderInjection(t *testing.T) {
	sender := NewSMTPSender(&config.SMTPConfig{Host: "127.0.0.1", Port: 1, From: "noreply@example.com"})

	err := sender.Send(context.Background(), Message{To: "alice@example.com", Subject: "Hi\r\nBcc: mallory@example.com"})
	assert.ErrorIs(t, err, ErrHeaderInjection)

	err = sender.Send(context.Background(), Message{To: "not an address", Subject: "Hi"})
	assert.Error(t, err)
}

func TestSMTPSender_DialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	sender := NewSMTPSender(&config.SMTPConfig{Host: "127.0.0.1", Port: port, From: "noreply@example.com"})
	err = sender.Send(context.Background(), Message{To: "alice@example.com", Subject: "Hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial 127.0.0.1:"+strconv.Itoa(port))
}

func TestMessageBuilders(t *testing.T) {
	t.Parallel()

	v := VerificationMessage("https://api.example.com/", "alice@example.com", "alice", "tok.en.value")
	assert.Equal(t, "alice@example.com", v.To)
	assert.Contains(t, v.Body, "https://api.example.com/users/verify/tok.en.value")
	assert.Contains(t, v.Body, "Hello alice")

	r := ResetMessage("https://api.example.com", "alice@example.com", "alice", "a+b/c")
	assert.Contains(t, r.Body, "https://api.example.com/users/reset-password?token=a%2Bb%2Fc")
}

type fakeQueue struct {
	accept bool
	msgs   []Message
}

func (q *fakeQueue) Enqueue(msg Message) bool {
	if !q.accept {
		return false
	}
	q.msgs = append(q.msgs, msg)
	return true
}

func TestNotifier(t *testing.T) {
	t.Parallel()

	q := &fakeQueue{accept: true}
	n := NewNotifier("http://localhost:8000", q)

	require.NoError(t, n.SendVerification(context.Background(), "alice@example.com", "alice", "vtoken"))
	require.NoError(t, n.SendPasswordReset(context.Background(), "alice@example.com", "alice", "rtoken"))
	require.Len(t, q.msgs, 2)
	assert.Contains(t, q.msgs[0].Body, "/users/verify/vtoken")
	assert.Contains(t, q.msgs[1].Body, "/users/reset-password?token=rtoken")

	q.accept = false
	assert.ErrorIs(t, n.SendVerification(context.Background(), "alice@example.com", "alice", "vtoken"), ErrQueueFull)
}
