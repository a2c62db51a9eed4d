package mailer

import (
	"fmt"
	"html"
	"time"

	"github.com/Kyz7/chainverse/internal/models"
)

func layout(title, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<body style="font-family: Helvetica, Arial, sans-serif; background: #0b0b1a; margin: 0; padding: 0;">
	<div style="max-width: 560px; margin: 40px auto; background: #ffffff; border-radius: 8px; overflow: hidden;">
		<div style="background: #5b2eff; padding: 24px; text-align: center; color: #ffffff;">
			<h1 style="margin: 0; font-size: 22px; letter-spacing: 1px;">CHAINVERSE</h1>
		</div>
		<div style="padding: 32px; color: #1a1a2e; line-height: 1.6;">
			<h2 style="margin-top: 0;">%s</h2>
			%s
		</div>
	</div>
</body>
</html>`, html.EscapeString(title), body)
}

// OTPMessage renders the email carrying a one-time code.
func OTPMessage(to string, purpose models.OTPPurpose, code string, ttl time.Duration) Message {
	subject := "Verify your ChainVerse email"
	heading := "Confirm your email"
	intro := "Use the code below to finish creating your ChainVerse account."
	if purpose.IsPasswordReset() {
		subject = "Reset your ChainVerse password"
		heading = "Password reset"
		intro = "Use the code below to reset your password. If you did not ask for this, ignore this email."
	}

	body := fmt.Sprintf(`<p>%s</p>
			<p style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">%s</p>
			<p>The code expires in %d minutes.</p>`,
		intro, html.EscapeString(code), int(ttl.Minutes()))

	return Message{To: []string{to}, Subject: subject, HTML: layout(heading, body)}
}
