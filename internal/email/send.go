// internal/email/send.go
package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const sendTimeout = 5 * time.Second

// SendAsync delivers message in the background. A nil client disables email.
func SendAsync(ctx context.Context, client EmailSender, recipient string, message Message, logger *zerolog.Logger) {
	recipient = strings.TrimSpace(recipient)
	if client == nil || recipient == "" {
		return
	}
	if message.Subject == "" || message.Body == "" {
		return
	}

	go func() {
		sendCtx, cancel := newEmailContext(ctx, sendTimeout)
		defer cancel()
		if err := client.Send(sendCtx, recipient, message.Subject, message.Body); err != nil && logger != nil {
			logger.Error().Err(err).Str("subject", message.Subject).Msg("Failed to send email")
		}
	}()
}

// Send delivers message and waits for the result.
func Send(ctx context.Context, client EmailSender, recipient string, message Message) error {
	recipient = strings.TrimSpace(recipient)
	if client == nil || recipient == "" {
		return nil
	}
	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return client.Send(sendCtx, recipient, message.Subject, message.Body)
}
