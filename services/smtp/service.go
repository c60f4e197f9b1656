package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mikklepp/trickle/config"
	"github.com/mikklepp/trickle/dto"
	"github.com/mikklepp/trickle/internal/tracing"
	"github.com/mikklepp/trickle/internal/utils"
)

// JobIDHeader carries the originating job id on every outbound message so
// that provider notifications can be routed back to the job.
const JobIDHeader = "X-Trickle-Job-ID"

type SMTPClient struct {
	cfg *config.SMTPConfig
}

func NewSMTPClient(cfg *config.SMTPConfig) *SMTPClient {
	return &SMTPClient{
		cfg: cfg,
	}
}

// Send performs one delivery attempt for one recipient and returns the
// assigned message id.
func (s *SMTPClient) Send(ctx context.Context, email *dto.OutboundEmail) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagJob(span, email.JobID)

	messageID, err := s.validateEmail(ctx, email)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	buffer, err := s.prepareMessage(ctx, email, messageID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	err = s.sendToServer(ctx, email.From, email.Recipient, buffer)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	return messageID, nil
}

func (s *SMTPClient) validateEmail(ctx context.Context, email *dto.OutboundEmail) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.validateEmail")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if email == nil {
		return "", fmt.Errorf("email cannot be nil")
	}
	if email.From == "" {
		return "", fmt.Errorf("from address is required")
	}
	if email.Recipient == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if email.Subject == "" {
		return "", fmt.Errorf("email must have a subject")
	}
	if email.BodyText == "" {
		return "", fmt.Errorf("email must have content")
	}

	validation := mailvalidate.ValidateEmailSyntax(email.From)
	if !validation.IsValid {
		return "", fmt.Errorf("from address is not valid")
	}

	return utils.GenerateMessageID(validation.Domain), nil
}

func (s *SMTPClient) prepareMessage(ctx context.Context, email *dto.OutboundEmail, messageID string) (*bytes.Buffer, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.prepareMessage")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	buffer := bytes.NewBuffer(nil)

	headers := map[string]string{
		"From":         email.From,
		"To":           email.Recipient,
		"Subject":      email.Subject,
		"Message-ID":   messageID,
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
		JobIDHeader:    email.JobID,
	}
	tracing.LogObjectAsJson(span, "headers", headers)

	var err error
	if len(email.Attachments) > 0 {
		err = s.buildMultipartMessage(ctx, email, headers, buffer)
	} else {
		err = s.buildPlainTextMessage(email, headers, buffer)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	return buffer, nil
}

func (s *SMTPClient) buildMultipartMessage(ctx context.Context, email *dto.OutboundEmail, headers map[string]string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.buildMultipartMessage")
	defer span.Finish()

	writer := multipart.NewWriter(buffer)
	headers["Content-Type"] = "multipart/mixed; boundary=" + writer.Boundary()

	writeHeaders(headers, buffer)

	if err := s.addTextPart(ctx, writer, email.BodyText); err != nil {
		return err
	}

	for i := range email.Attachments {
		if err := s.addAttachment(ctx, writer, &email.Attachments[i]); err != nil {
			return err
		}
	}

	return writer.Close()
}

func (s *SMTPClient) buildPlainTextMessage(email *dto.OutboundEmail, headers map[string]string, buffer *bytes.Buffer) error {
	headers["Content-Type"] = "text/plain; charset=UTF-8"

	writeHeaders(headers, buffer)

	_, err := buffer.WriteString(email.BodyText)
	return err
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

func (s *SMTPClient) addTextPart(ctx context.Context, writer *multipart.Writer, content string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.addTextPart")
	defer span.Finish()

	textPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/plain; charset=UTF-8"},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		err = fmt.Errorf("failed to create text part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = textPart.Write([]byte(content))
	if err != nil {
		err = fmt.Errorf("failed to write text content: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *SMTPClient) addAttachment(ctx context.Context, writer *multipart.Writer, attachment *dto.OutboundAttachment) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.addAttachment")
	defer span.Finish()

	if attachment == nil {
		err := errors.New("attachment is nil")
		tracing.TraceErr(span, err)
		return err
	}

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachmentPart, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", contentType, attachment.Filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", attachment.Filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		err = fmt.Errorf("failed to create attachment part: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	encoded := base64.StdEncoding.EncodeToString(attachment.Content)
	_, err = attachmentPart.Write([]byte(encoded))
	if err != nil {
		err = fmt.Errorf("failed to write attachment content: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *SMTPClient) sendToServer(ctx context.Context, from string, recipient string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "SMTPClient.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	// Port 587 expects STARTTLS before AUTH
	if s.cfg.Port == 587 {
		return s.sendWithSTARTTLS(ctx, addr, auth, from, recipient, buffer)
	}

	err := smtp.SendMail(addr, auth, from, []string{recipient}, buffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to send email: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return nil
}

func (s *SMTPClient) sendWithSTARTTLS(ctx context.Context, addr string, auth smtp.Auth, from string, recipient string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "SMTPClient.sendWithSTARTTLS")
	defer span.Finish()
	span.LogKV("smtp_server", s.cfg.Host)
	span.LogKV("smtp_port", s.cfg.Port)
	span.LogKV("from_address", from)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		err = fmt.Errorf("failed to connect to SMTP server: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		err = fmt.Errorf("failed to create SMTP client: %w", err)
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Close()

	tlsConfig := &tls.Config{
		ServerName: s.cfg.Host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		err = fmt.Errorf("failed to start TLS: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if auth != nil {
		if err = client.Auth(auth); err != nil {
			err = fmt.Errorf("SMTP authentication failed: %w", err)
			tracing.TraceErr(span, err)
			return err
		}
	}

	if err = client.Mail(from); err != nil {
		err = fmt.Errorf("SMTP MAIL command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	if err = client.Rcpt(recipient); err != nil {
		err = fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
		tracing.TraceErr(span, err)
		return err
	}

	dataWriter, err := client.Data()
	if err != nil {
		err = fmt.Errorf("SMTP DATA command failed: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	_, err = dataWriter.Write(buffer.Bytes())
	if err != nil {
		err = fmt.Errorf("failed to write email data: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	err = dataWriter.Close()
	if err != nil {
		err = fmt.Errorf("failed to close data writer: %w", err)
		tracing.TraceErr(span, err)
		return err
	}

	return client.Quit()
}
