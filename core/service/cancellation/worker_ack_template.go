package cancellation

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// AckData fills the cancellation acknowledgment.
type AckData struct {
	LeadName string
	Date     string
	Time     string
}

var ackTemplate = template.Must(template.New("cancellation_ack").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Meeting Cancelled - Leadestate</title>
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Helvetica Neue', Arial, sans-serif; background-color: #f5f5f5;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f5f5f5; padding: 24px;">
    <tr>
      <td align="center">
        <table role="presentation" width="600" cellspacing="0" cellpadding="0" style="background-color: #ffffff; border-radius: 8px; overflow: hidden;">
          <tr>
            <td style="padding: 32px 40px;">
              <p style="margin: 0 0 16px; font-size: 16px; line-height: 1.6; color: #334155;">Hi {{.LeadName}},</p>
              <p style="margin: 0 0 24px; font-size: 16px; line-height: 1.6; color: #334155;">
                We've received your request and cancelled your call{{if .Date}} scheduled for {{.Date}}{{if .Time}} at {{.Time}}{{end}}{{end}}.
              </p>
              <p style="margin: 0 0 24px; font-size: 16px; line-height: 1.6; color: #334155;">
                If you'd like to reschedule at a different time, simply reply to this email or give us a call. We're here to help whenever you're ready.
              </p>
              <p style="margin: 24px 0 0; font-size: 14px; line-height: 1.6; color: #334155;">
                Best regards,<br>
                <strong>The Leadestate Team</strong>
              </p>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`))

// RenderAcknowledgment renders the HTML body. Values are escaped.
func RenderAcknowledgment(data AckData) (string, error) {
	var buf bytes.Buffer
	if err := ackTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PlainAcknowledgment is the text/plain alternative.
func PlainAcknowledgment(data AckData) string {
	when := ""
	if data.Date != "" {
		when = " scheduled for " + data.Date
		if data.Time != "" {
			when += " at " + data.Time
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", data.LeadName)
	fmt.Fprintf(&b, "We've received your request and cancelled your call%s.\n\n", when)
	b.WriteString("If you'd like to reschedule at a different time, simply reply to this email or give us a call. We're here to help whenever you're ready.\n\n")
	b.WriteString("Best regards,\nThe Leadestate Team\n")
	return b.String()
}
