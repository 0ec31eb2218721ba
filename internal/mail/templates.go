package mail

import (
	"bytes"
	"html/template"
	"time"
)

var codeTemplate = template.Must(template.New("code").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="margin:0;padding:40px 0;font-family:Helvetica,Arial,sans-serif;background:#f4f6f8;color:#333">
<div style="max-width:600px;margin:0 auto;padding:0 20px">
<h2>{{.Title}}</h2>
<p>{{.Intro}} Do not share this code with anyone.</p>
<p style="font-size:28px;letter-spacing:6px;font-weight:bold">{{.Code}}</p>
<p>This code expires in <strong>{{.Validity}}</strong>.</p>
</div>
</body>
</html>`))

type codeData struct {
	Title    string
	Intro    string
	Code     string
	Validity string
}

func renderCode(d codeData) (string, error) {
	var buf bytes.Buffer
	if err := codeTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// VerificationCode builds the account activation email.
func VerificationCode(to, code string, ttl time.Duration) (Message, error) {
	body, err := renderCode(codeData{
		Title:    "Verification Code",
		Intro:    "Use the code below to activate your account.",
		Code:     code,
		Validity: FormatDuration(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Verification Code", HTMLBody: body, Tag: "verification-code"}, nil
}

// ResetPasswordCode builds the password reset email.
func ResetPasswordCode(to, code string, ttl time.Duration) (Message, error) {
	body, err := renderCode(codeData{
		Title:    "Reset Password Code",
		Intro:    "Use the code below to set a new password.",
		Code:     code,
		Validity: FormatDuration(ttl),
	})
	if err != nil {
		return Message{}, err
	}
	return Message{To: to, Subject: "Reset Password Code", HTMLBody: body, Tag: "reset-password-code"}, nil
}
