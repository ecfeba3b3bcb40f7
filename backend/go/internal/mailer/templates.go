package mailer

import (
	"bytes"
	"html/template"
)

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html lang="en">
  <body style="font-family: Arial, sans-serif;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h2>Hello, Coder!</h2>
      <p>We received a request to reset your SynapseCode password.</p>
      <p><a href="{{.Link}}">Reset your password</a></p>
      <p style="font-size: 12px; color: gray;">If you didn't request this, please ignore this email.</p>
    </div>
  </body>
</html>`))

var inviteTemplate = template.Must(template.New("invite").Parse(`<!DOCTYPE html>
<html lang="en">
  <body style="font-family: Arial, sans-serif;">
    <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
      <h2>Hello, Coder!</h2>
      <p>{{.Inviter}} invited you to the workspace <b>{{.Workspace}}</b> on SynapseCode.</p>
      <p>Open SynapseCode to accept or decline the invitation.</p>
    </div>
  </body>
</html>`))

// ResetPasswordHTML 渲染重置密码邮件。
func ResetPasswordHTML(link string) (string, error) {
	var buf bytes.Buffer
	err := resetTemplate.Execute(&buf, struct{ Link string }{link})
	return buf.String(), err
}

// InviteHTML 渲染邀请通知邮件。
func InviteHTML(inviter, workspace string) (string, error) {
	var buf bytes.Buffer
	err := inviteTemplate.Execute(&buf, struct{ Inviter, Workspace string }{inviter, workspace})
	return buf.String(), err
}
