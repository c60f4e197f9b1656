package smtp

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/dto"
)

func newClient() *SMTPClient {
	return NewSMTPClient(&config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 587,
	})
}

func outbound() *dto.OutboundEmail {
	return &dto.OutboundEmail{
		JobID:     "job_abc",
		From:      "sender@example.com",
		Recipient: "recipient@example.com",
		Subject:   "hello",
		BodyText:  "body",
	}
}

func TestValidateEmail_AssignsMessageID(t *testing.T) {
	client := newClient()

	messageID, err := client.validateEmail(context.Background(), outbound())

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(messageID, "<"))
	assert.True(t, strings.HasSuffix(messageID, "@example.com>"))
}

func TestValidateEmail_RejectsIncompleteEmail(t *testing.T) {
	client := newClient()

	email := outbound()
	email.From = ""
	_, err := client.validateEmail(context.Background(), email)
	require.Error(t, err)

	email = outbound()
	email.Recipient = ""
	_, err = client.validateEmail(context.Background(), email)
	require.Error(t, err)

	email = outbound()
	email.From = "not-an-address"
	_, err = client.validateEmail(context.Background(), email)
	require.Error(t, err)
}

func TestPrepareMessage_StampsJobIDHeader(t *testing.T) {
	client := newClient()

	buffer, err := client.prepareMessage(context.Background(), outbound(), "<id@example.com>")

	require.NoError(t, err)
	message := buffer.String()
	assert.Contains(t, message, JobIDHeader+": job_abc\r\n")
	assert.Contains(t, message, "Message-ID: <id@example.com>\r\n")
	assert.Contains(t, message, "body")
}

func TestPrepareMessage_MultipartWhenAttached(t *testing.T) {
	client := newClient()

	email := outbound()
	email.Attachments = []dto.OutboundAttachment{
		{Filename: "report.pdf", ContentType: "application/pdf", Content: []byte("pdf-bytes")},
	}

	buffer, err := client.prepareMessage(context.Background(), email, "<id@example.com>")

	require.NoError(t, err)
	message := buffer.String()
	assert.Contains(t, message, "multipart/mixed; boundary=")
	assert.Contains(t, message, `attachment; filename="report.pdf"`)
}
