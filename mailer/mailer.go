// Package mailer carries outbound notifications. Email goes out over SMTP,
// SMS through Twilio; both satisfy the same Sender contract so handlers can
// be tested with fakes.
package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Message is one outbound notification. Attachments are references to stored
// artifacts (QR images); the receiving channel decides what to do with them.
type Message struct {
	To          string
	Subject     string
	Body        string
	Attachments []string
}

// Sender delivers a single message.
type Sender interface {
	Send(msg Message) error
}

// SMTPSender sends mail through a plain-auth SMTP relay.
type SMTPSender struct {
	Host     string
	Port     string
	From     string
	Password string
}

func (s *SMTPSender) Send(msg Message) error {
	auth := smtp.PlainAuth("", s.From, s.Password, s.Host)

	body := msg.Body
	for _, ref := range msg.Attachments {
		body += "\r\n\r\nAdjunto: " + ref
	}

	raw := []byte("To: " + msg.To + "\r\n" +
		"Subject: " + msg.Subject + "\r\n" +
		"\r\n" + body + "\r\n")

	if err := smtp.SendMail(s.Host+":"+s.Port, auth, s.From, []string{msg.To}, raw); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// TwilioSender sends the subject and body as a single SMS. The To field must
// hold a phone number for this channel.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

func (t *TwilioSender) Send(msg Message) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(t.from)
	params.SetBody(msg.Subject + "\n" + msg.Body)

	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send to %s: %w", msg.To, err)
	}
	return nil
}
