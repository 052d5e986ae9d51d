package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMTPMailer_Send(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 2525})
	var gotAddr string
	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, _ string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	err := m.Send(context.Background(), Mail{
		From: "no-reply@faminga.app", To: []string{"a@x", "b@x"},
		Subject: "Verification request", HTML: "<p>hi</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "mail.local:2525", gotAddr)
	assert.Equal(t, []string{"a@x", "b@x"}, gotTo)
	assert.Contains(t, gotMsg, "To: a@x, b@x\r\n")
	assert.Contains(t, gotMsg, "Content-Type: text/html")
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\n<p>hi</p>"))
}

func TestSMTPMailer_Errors(t *testing.T) {
	m := NewSMTPMailer(SMTPConfig{Host: "mail.local", Port: 25})
	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay down") }

	assert.Error(t, m.Send(context.Background(), Mail{}))
	assert.ErrorContains(t, m.Send(context.Background(), Mail{To: []string{"a@x"}}), "relay down")
	assert.ErrorIs(t, DisabledMailer{}.Send(context.Background(), Mail{}), ErrMailDisabled)
}
