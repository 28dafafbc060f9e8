package notify_test

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"price-tracker/internal/notify"
)

type smtpSession struct {
	from  string
	rcpts []string
	data  string
}

// serveSMTP accepts one connection and speaks just enough SMTP for net/smtp.
func serveSMTP(t *testing.T) (int, <-chan smtpSession) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	sessions := make(chan smtpSession, 1)

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		tp := textproto.NewConn(conn)
		var s smtpSession

		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}

			cmd := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(cmd, "EHLO"):
				_ = tp.PrintfLine("250-localhost")
				_ = tp.PrintfLine("250 AUTH PLAIN")
			case strings.HasPrefix(cmd, "AUTH"):
				_ = tp.PrintfLine("235 2.7.0 Authentication successful")
			case strings.HasPrefix(cmd, "MAIL FROM:"):
				s.from = strings.Trim(line[len("MAIL FROM:"):], "<>")
				_ = tp.PrintfLine("250 OK")
			case strings.HasPrefix(cmd, "RCPT TO:"):
				s.rcpts = append(s.rcpts, strings.Trim(line[len("RCPT TO:"):], "<>"))
				_ = tp.PrintfLine("250 OK")
			case cmd == "DATA":
				_ = tp.PrintfLine("354 End data with <CR><LF>.<CR><LF>")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				s.data = string(data)
				_ = tp.PrintfLine("250 OK")
			case cmd == "QUIT":
				_ = tp.PrintfLine("221 Bye")
				sessions <- s
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port, sessions
}

func TestDeliver(t *testing.T) {
	rq := require.New(t)

	port, sessions := serveSMTP(t)

	svc := notify.NewEmailService(notify.EmailOptions{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "alerts@example.com",
		Password: "secret",
		From:     "PriceWatch <alerts@example.com>",
		Timeout:  5 * time.Second,
	})
	rq.True(svc.IsEnabled())

	content := notify.EmailContent{
		Subject: "Lowest Price Alert for A",
		Body:    "<h4>Hey, A has reached its lowest price ever!!</h4>",
	}

	err := svc.Deliver(context.Background(), content, []string{"a@x.com", "b@x.com", "a@x.com"})
	rq.NoError(err)

	var s smtpSession
	select {
	case s = <-sessions:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session not finished")
	}

	rq.Equal("alerts@example.com", s.from)
	rq.Equal([]string{"a@x.com", "b@x.com"}, s.rcpts)
	rq.Contains(s.data, "From: PriceWatch <alerts@example.com>")
	rq.Contains(s.data, "To: undisclosed-recipients:;")
	rq.Contains(s.data, "Subject: Lowest Price Alert for A")
	rq.Contains(s.data, "Content-Type: text/html; charset=UTF-8")
	rq.Contains(s.data, "has reached its lowest price ever!!")
}

func TestDeliverDisabled(t *testing.T) {
	svc := notify.NewEmailService(notify.EmailOptions{Host: "smtp.example.com", Port: 587})
	require.False(t, svc.IsEnabled())

	err := svc.Deliver(context.Background(), notify.EmailContent{}, []string{"a@x.com"})
	require.ErrorIs(t, err, notify.ErrDisabled)
}

func TestDeliverRejectsRecipients(t *testing.T) {
	svc := notify.NewEmailService(notify.EmailOptions{
		Host:     "127.0.0.1",
		Port:     1,
		Username: "u",
		Password: "p",
	})

	err := svc.Deliver(context.Background(), notify.EmailContent{}, nil)
	require.ErrorIs(t, err, notify.ErrNoRecipients)

	err = svc.Deliver(context.Background(), notify.EmailContent{}, []string{"not-an-email", "Legacy User <bad"})
	require.ErrorIs(t, err, notify.ErrNoRecipients)
	require.ErrorIs(t, err, notify.ErrInvalidRecipient)
}

func TestDeliverSkipsInvalidRecipients(t *testing.T) {
	rq := require.New(t)

	port, sessions := serveSMTP(t)

	svc := notify.NewEmailService(notify.EmailOptions{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "alerts@example.com",
		Password: "secret",
		Timeout:  5 * time.Second,
	})

	err := svc.Deliver(context.Background(), notify.EmailContent{Subject: "s"},
		[]string{"good@x.com", "Legacy User <bad", "other@x.com"})
	rq.NoError(err)

	var s smtpSession
	select {
	case s = <-sessions:
	case <-time.After(5 * time.Second):
		t.Fatal("smtp session not finished")
	}

	rq.Equal([]string{"good@x.com", "other@x.com"}, s.rcpts)
}

func TestDeliverConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	svc := notify.NewEmailService(notify.EmailOptions{
		Host:     "127.0.0.1",
		Port:     port,
		Username: "u",
		Password: "p",
		Timeout:  time.Second,
	})

	err = svc.Deliver(context.Background(), notify.EmailContent{Subject: "s"}, []string{"a@x.com"})
	require.ErrorContains(t, err, "send email")
}
