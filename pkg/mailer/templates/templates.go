package templates

import (
	"bytes"
	"fmt"
	htmpl "html/template"
)

// Subject and body builders for the transactional emails the account service
// sends. Activation and reset emails are rendered inline by the service;
// Render resolves template names for jobs consumed off the queue.

var activationTmpl = htmpl.Must(htmpl.New("activation").Parse(
	`<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Please activate your account by clicking the link below:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>`))

var resetTmpl = htmpl.Must(htmpl.New("reset").Parse(
	`<p>Hello,</p>
<p>You can reset your password by clicking the link below:</p>
<p><a href="{{.Link}}">{{.Link}}</a></p>
<p>This link expires soon. If you did not request a reset, ignore this email.</p>`))

var loginTmpl = htmpl.Must(htmpl.New("login").Parse(
	`<p>Hello {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
<p>Your account {{.Email}} signed in at {{.Time}}.</p>
<p>If this wasn't you, reset your password immediately.</p>`))

// ActivationEmail builds the account activation email around the given link.
func ActivationEmail(name, link string) (subject, text, html string) {
	subject = "Activate your account"
	text = "Please activate your account: " + link
	html = render(activationTmpl, map[string]string{"Name": name, "Link": link})
	return subject, text, html
}

// PasswordResetEmail builds the password recovery email around the given link.
func PasswordResetEmail(link string) (subject, text, html string) {
	subject = "Reset your password"
	text = "You can reset your password here: " + link
	html = render(resetTmpl, map[string]string{"Link": link})
	return subject, text, html
}

// LoginNotificationEmail builds the sign-in notice delivered by the worker.
func LoginNotificationEmail(name, email, at string) (subject, text, html string) {
	subject = "New sign-in to your account"
	text = "Your account " + email + " signed in at " + at + "."
	html = render(loginTmpl, map[string]string{"Name": name, "Email": email, "Time": at})
	return subject, text, html
}

// Render resolves a queued template name to a rendered email.
func Render(name string, data map[string]any) (subject, text, html string, err error) {
	switch name {
	case "login_notification":
		s, t, h := LoginNotificationEmail(str(data["Name"]), str(data["Email"]), str(data["Time"]))
		return s, t, h, nil
	default:
		return "", "", "", fmt.Errorf("unknown email template %q", name)
	}
}

func render(t *htmpl.Template, data any) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
