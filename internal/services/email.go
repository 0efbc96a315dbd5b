package services

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/example/nepgrocery/internal/config"
)

// EmailService sends transactional mail over SMTP. Sends are synchronous
// from the caller's perspective; a delivery failure is returned so the
// triggering state change can be aborted.
type EmailService struct {
	host     string
	port     int
	username string
	password string
	from     string
}

// NewEmailService constructs an EmailService from configuration.
func NewEmailService(cfg *config.Config) *EmailService {
	return &EmailService{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		username: cfg.SMTPUsername,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
	}
}

// Send delivers a single HTML message.
func (s *EmailService) Send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", body)

	d := gomail.NewDialer(s.host, s.port, s.username, s.password)
	if err := d.DialAndSend(m); err != nil {
		log.Error().Err(err).Str("to", to).Str("subject", subject).Msg("email delivery failed")
		return err
	}

	log.Info().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}

// SendOTP mails a login verification code.
func (s *EmailService) SendOTP(to, code string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
			<h2 style="color: #2c5282;">Login Verification</h2>
			<p>Your One-Time Password (OTP) for login is:</p>
			<h1 style="background-color: #f0fdf4; color: #15803d; padding: 20px; text-align: center; letter-spacing: 5px; border-radius: 10px;">%s</h1>
			<p>This code expires in 10 minutes.</p>
			<p style="color: #666; font-size: 12px; margin-top: 20px;">If you didn't request this, please change your password immediately.</p>
		</div>`, code)

	return s.Send(to, "Your Login OTP", body)
}

// SendPasswordReset mails a reset link valid for 15 minutes.
func (s *EmailService) SendPasswordReset(to, fullName, resetURL string) error {
	body := fmt.Sprintf(`
		<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
			<h2 style="color: #2c5282;">Password Reset Request</h2>
			<p>Hello %s,</p>
			<p>You requested a password reset. Please click the button below to create a new password. This link is valid for 15 minutes.</p>
			<p style="text-align: center; margin: 20px 0;">
				<a href="%s" style="background-color: #28a745; color: white; padding: 12px 25px; text-decoration: none; border-radius: 5px; font-weight: bold; display: inline-block;">Reset Password</a>
			</p>
			<p>If you did not request this, please ignore this email. Your password will not be changed.</p>
		</div>`, fullName, resetURL)

	return s.Send(to, "Reset Your NepGrocery Password", body)
}
