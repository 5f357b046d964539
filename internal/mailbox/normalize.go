package mailbox

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-message/mail"

	"mailtriage/internal/model"
)

// CanonicalMessageID strips the angle brackets RFC 5322 puts around
// Message-ID values so IDs compare equal regardless of which mailbox the
// message was fetched from.
func CanonicalMessageID(raw string) string {
	id := strings.TrimSpace(raw)
	id = strings.TrimPrefix(id, "<")
	id = strings.TrimSuffix(id, ">")
	return id
}

// Normalize turns a fetched envelope and raw body into an InboundMessage.
// Returns false when the envelope carries no Message-ID; such messages are
// dropped by the caller.
func Normalize(account string, env *imap.Envelope, rawBody []byte) (model.InboundMessage, bool) {
	if env == nil {
		return model.InboundMessage{}, false
	}

	messageID := CanonicalMessageID(env.MessageID)
	if messageID == "" {
		return model.InboundMessage{}, false
	}

	m := model.InboundMessage{
		MessageID:  messageID,
		Account:    account,
		Subject:    env.Subject,
		ReceivedAt: env.Date,
		BodyText:   extractTextBody(rawBody),
	}

	if len(env.From) > 0 {
		from := env.From[0]
		m.SenderEmail = from.Addr()
		m.SenderName = from.Name
		if m.SenderName == "" {
			m.SenderName = m.SenderEmail
		}
	}

	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now()
	}

	return m, true
}

// extractTextBody parses the MIME structure and returns the text/plain
// part, falling back to text/html and finally the raw bytes. The
// classifier only needs readable text, not a faithful rendering.
func extractTextBody(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw)
	}
	defer mr.Close()

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(part.Body)
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			textBody = string(body)
		case strings.HasPrefix(contentType, "text/html"):
			htmlBody = string(body)
		}
	}

	if textBody != "" {
		return textBody
	}
	if htmlBody != "" {
		return htmlBody
	}
	return string(raw)
}
