package identity

import (
	"bytes"
	"fmt"
	"text/template"
)

// Email bodies stay close to the product's transactional voice. Rendering
// uses text/template on purpose: the only interpolated values are names,
// company names, and server-generated tokens, never user-controlled markup.
var (
	welcomeEmailTmpl = template.Must(template.New("welcome").Parse(`
<div>Hi {{.FirstName}}!</div>
<br />
<div>Thank you for choosing {{.Product}} as your bug reporting tool. Please take a look at our <a href="{{.DocsURL}}">documentation</a> and set up your first site on {{.Product}}.</div>
<br />{{if .ConfirmationURL}}
<div>Please confirm your email address by following the link below:</div>
<br />
<div>{{.ConfirmationURL}}</div>
<br />{{end}}
<div>If you have any questions, please don't hesitate to contact us by emailing {{.SupportEmail}}.</div>
<br />
<div>Best Regards,</div>
<br />
<div>{{.Product}}</div>
`))

	invitationEmailTmpl = template.Must(template.New("invitation").Parse(`
<div>Hi {{.FirstName}}!</div>
<br />
<div>You have been invited to the {{.CompanyName}} workspace on {{.Product}}.</div>
<br />
<div>Please set up your password <a href="{{.InvitationURL}}">here</a>.</div>
<br />
<div>Best Regards,</div>
<br />
<div>{{.Product}}</div>
`))

	resetPasswordEmailTmpl = template.Must(template.New("reset").Parse(`
<div>Hi {{.FirstName}},</div>
<br />
<div>You are receiving this email because you have requested to reset your password. You can do so by following the link below:</div>
<br />
<div>{{.ResetURL}}</div>
<br />
<div>Best Regards,</div>
<br />
<div>{{.Product}}</div>
`))

	confirmationEmailTmpl = template.Must(template.New("confirmation").Parse(`
<div>Hi {{.FirstName}},</div>
<br />
<div>Please confirm your email address by following the link below:</div>
<br />
<div>{{.ConfirmationURL}}</div>
<br />
<div>Best Regards,</div>
<br />
<div>{{.Product}}</div>
`))
)

type emailContext struct {
	FirstName       string
	Product         string
	DocsURL         string
	SupportEmail    string
	CompanyName     string
	InvitationURL   string
	ResetURL        string
	ConfirmationURL string
}

func (s Settings) emailContext(user *User) emailContext {
	name := "there"
	if user != nil && user.FirstName != "" {
		name = user.FirstName
	}
	return emailContext{
		FirstName:    name,
		Product:      s.ProductName,
		DocsURL:      s.AppURL + "/support/",
		SupportEmail: s.SupportEmail,
	}
}

func renderEmail(tmpl *template.Template, data emailContext) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// NewWelcomeEmail is sent once after self-registration. When confirmation is
// required at sign-up the welcome email carries the confirmation link, so a
// new account still receives exactly one message.
func NewWelcomeEmail(s Settings, user *User, confirmationToken string) (Message, error) {
	data := s.emailContext(user)
	if confirmationToken != "" {
		data.ConfirmationURL = s.ConfirmationURL(confirmationToken)
	}

	html, err := renderEmail(welcomeEmailTmpl, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      user.Email,
		From:    s.EmailFrom,
		Subject: fmt.Sprintf("Welcome to %s", s.ProductName),
		HTML:    html,
	}, nil
}

// NewInvitationEmail is sent to an invited account, local or merged, with the
// link that carries its one-time invitation code.
func NewInvitationEmail(s Settings, user *User, companyName, code string) (Message, error) {
	data := s.emailContext(user)
	data.CompanyName = companyName
	data.InvitationURL = s.AppURL + "/auth/accept-invitation/" + code

	html, err := renderEmail(invitationEmailTmpl, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      user.Email,
		From:    s.EmailFrom,
		Subject: fmt.Sprintf("You have been invited to the %s workspace on %s", companyName, s.ProductName),
		HTML:    html,
	}, nil
}

// NewResetPasswordEmail carries the one-time reset link. Callers send it
// before the token is persisted; a failed delivery must leave no live token.
func NewResetPasswordEmail(s Settings, user *User, token string) (Message, error) {
	data := s.emailContext(user)
	data.ResetURL = s.AppURL + "/auth/reset-password/" + token

	html, err := renderEmail(resetPasswordEmailTmpl, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      user.Email,
		From:    s.EmailFrom,
		Subject: fmt.Sprintf("Reset Password for your %s account", s.ProductName),
		HTML:    html,
	}, nil
}

// NewConfirmationEmail carries the one-time email-confirmation link.
func NewConfirmationEmail(s Settings, user *User, token string) (Message, error) {
	data := s.emailContext(user)
	data.ConfirmationURL = s.ConfirmationURL(token)

	html, err := renderEmail(confirmationEmailTmpl, data)
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      user.Email,
		From:    s.EmailFrom,
		Subject: fmt.Sprintf("Confirm your %s email address", s.ProductName),
		HTML:    html,
	}, nil
}
