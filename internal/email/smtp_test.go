package email

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/smtp"
	"testing"
	"time"

	"notification-service/internal/templates"

	"github.com/emersion/go-message/mail"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposeProducesAlternativeParts(t *testing.T) {
	raw, err := Compose("Estudio", "avisos@example.com", "ana@example.com", "Tarea por vencer", "<p>Hola</p>", "Hola", time.Now())
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Tarea por vencer", subject)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "ana@example.com", to[0].Address)

	bodies := map[string]string{}
	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		h, ok := p.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := h.ContentType()
		require.NoError(t, err)
		b, err := io.ReadAll(p.Body)
		require.NoError(t, err)
		bodies[ct] = string(b)
	}
	assert.Equal(t, "Hola", bodies["text/plain"])
	assert.Equal(t, "<p>Hola</p>", bodies["text/html"])
}

func TestSMTPTransportSend(t *testing.T) {
	var gotAddr string
	var gotTo []string
	tr := NewSMTPTransport(SMTPConfig{Host: "smtp.example.com", Port: "587", From: "avisos@example.com"})
	tr.send = func(addr string, _ smtp.Auth, _ string, to []string, _ []byte) error {
		gotAddr, gotTo = addr, to
		return nil
	}

	require.NoError(t, tr.Send(context.Background(), "ana@example.com", "s", "<p>h</p>", "t"))
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ana@example.com"}, gotTo)

	tr.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("421 try later") }
	assert.ErrorContains(t, tr.Send(context.Background(), "ana@example.com", "s", "h", "t"), "421")
}

type recordingTransport struct {
	subjects []string
	err      error
}

func (r *recordingTransport) Send(_ context.Context, _, subject, _, _ string) error {
	r.subjects = append(r.subjects, subject)
	return r.err
}

func TestChannelSend(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	transport := &recordingTransport{}
	ch := NewChannel(templates.NewBuiltinRenderer(), transport, logger)

	rendered, err := ch.Send(context.Background(), "ana@example.com", templates.CategoryExpiration, templates.NameTaskDue, map[string]string{"title": "Apelar"})
	require.NoError(t, err)
	assert.Equal(t, "Tarea por vencer: Apelar", rendered.Subject)
	assert.Equal(t, []string{rendered.Subject}, transport.subjects)

	transport.err = errors.New("connection refused")
	rendered, err = ch.Send(context.Background(), "ana@example.com", templates.CategoryExpiration, templates.NameTaskDue, map[string]string{"title": "Apelar"})
	assert.Error(t, err)
	assert.NotEmpty(t, rendered.Subject)
	assert.Equal(t, "email delivery failed", hook.LastEntry().Message)
}
