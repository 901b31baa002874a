package emailsvc

import (
	"bytes"
	"context"
	"log"
	"net/mail"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abiaedu/portal/core"
)

func setupTemplates(t *testing.T) {
	fsys := fstest.MapFS{
		"email/_base.txt":    {Data: []byte(`{{template "content" .}}`)},
		"email/_base.gohtml": {Data: []byte(`<p>{{template "content" .}}</p>`)},
		"email/hello.txt":    {Data: []byte(`{{define "content"}}Hello {{.Data}}{{end}}`)},
		"email/hello.gohtml": {Data: []byte(`{{define "content"}}Hello <b>{{.Data}}</b>{{end}}`)},
	}
	require.NoError(t, core.ParseEmailTemplates(fsys, "email", "http://localhost", true))
}

func TestConsoleService(t *testing.T) {
	setupTemplates(t)
	conf := &core.Config{AppName: "Portal"}
	conf.SetDefaultFromEmail("Portal <noreply@test.test>")

	var buf bytes.Buffer
	svc := NewConsoleService(conf, log.New(&buf, "", 0))
	ResetSentMessages()

	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: "Ada", Address: "ada@test.test"}},
		Subject:      "Hi",
		TemplateName: "hello",
		TemplateData: "Ada",
	}
	require.NoError(t, msg.Attach(strings.NewReader("a,b"), "data.csv", "text/csv"))
	require.NoError(t, svc.SendMessages(context.Background(), msg))

	out := buf.String()
	assert.Contains(t, out, "Subject: [Portal] Hi")
	assert.Contains(t, out, "Hello Ada")
	assert.Contains(t, out, "Hello <b>Ada</b>")
	assert.Contains(t, out, "multipart/mixed")
	assert.Contains(t, out, "filename=data.csv")

	sent, ok := LastSentMessage()
	require.True(t, ok)
	assert.Equal(t, "hello", sent.TemplateName)
	assert.Len(t, SentMessages, 1)
}

func TestConsoleService_SkipsEmptyMessages(t *testing.T) {
	setupTemplates(t)
	svc := NewConsoleServiceMock(&core.Config{})
	ResetSentMessages()

	require.NoError(t, svc.SendMessages(context.Background(), &core.EmailMessage{Subject: "no recipients", BodyStr: "x"}))
	assert.Empty(t, SentMessages)

	err := svc.SendMessages(context.Background(), &core.EmailMessage{
		To:           []mail.Address{{Address: "a@test.test"}},
		TemplateName: "missing",
	})
	assert.Error(t, err)
}

func TestFailingServiceMock(t *testing.T) {
	setupTemplates(t)
	boom := errors.New("smtp down")
	svc := NewFailingServiceMock(&core.Config{}, boom, "hello")
	ResetSentMessages()

	to := []mail.Address{{Address: "a@test.test"}}
	err := svc.SendMessages(context.Background(), &core.EmailMessage{To: to, TemplateName: "hello", TemplateData: "x"})
	assert.Equal(t, boom, err)

	err = svc.SendMessages(context.Background(), &core.EmailMessage{To: to, BodyStr: "plain"})
	assert.NoError(t, err)
	assert.Len(t, SentMessages, 1)
}

func TestSendgridService_prepare(t *testing.T) {
	conf := &core.Config{AppName: "Portal"}
	conf.SetDefaultFromEmail("noreply@test.test")
	svc := NewSendgridService(conf).(*sendgridService)

	m := svc.prepare(core.EmailMessage{
		To:          []mail.Address{{Address: "a@test.test"}},
		Subject:     "Export",
		TextContent: "see attached",
		Attachments: []core.Attachment{{Content: []byte("xlsx"), ContentType: "application/octet-stream", Filename: "f.xlsx"}},
	})
	require.Len(t, m.Personalizations, 1)
	assert.Equal(t, "[Portal] Export", m.Personalizations[0].Subject)
	require.Len(t, m.Content, 1)
	require.Len(t, m.Attachments, 1)
	assert.Equal(t, "eGxzeA", strings.TrimRight(m.Attachments[0].Content, "="))
}
