package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"

	"storefront/internal/models"
)

var confirmationTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"money": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}).Parse(`<h1>Thank you for your order!</h1>
<p>Order ID: {{.ID.Hex}}</p>
<p>Total: ${{money .TotalPrice}}</p>
<h3>Order Items:</h3>
<ul>
{{- range .Lines}}
  <li>{{.Name}} - Quantity: {{.Quantity}} - ${{money .UnitPrice}}</li>
{{- end}}
</ul>
<p>We'll send you a shipping confirmation when your items ship.</p>
`))

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) Send(ctx context.Context, order models.Order, email string) error {
	rcpt, err := recipient(email)
	if err != nil {
		return err
	}
	email = rcpt
	msg, err := ConfirmationMessage(s.cfg.From, email, order)
	if err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	// net/smtp has no context support; the goroutine outlives a cancelled ctx.
	errCh := make(chan error, 1)
	go func() { errCh <- s.send(addr, auth, s.cfg.From, []string{email}, msg) }()
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", email, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("send mail to %s: %w", email, ctx.Err())
	}
}

// ConfirmationMessage renders the full RFC 5322 message for an order.
func ConfirmationMessage(from, to string, order models.Order) ([]byte, error) {
	to, err := recipient(to)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer
	if err := confirmationTemplate.Execute(&body, order); err != nil {
		return nil, fmt.Errorf("render confirmation: %w", err)
	}

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "Subject: Order Confirmation - #%s\r\n", order.ID.Hex())
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
	msg.Write(body.Bytes())
	return msg.Bytes(), nil
}

// recipient reduces an address to its bare addr-spec. Anything that does not
// parse as a single address, header injection included, is rejected.
func recipient(to string) (string, error) {
	addr, err := mail.ParseAddress(to)
	if err != nil {
		return "", fmt.Errorf("invalid recipient %q: %w", to, err)
	}
	return addr.Address, nil
}
