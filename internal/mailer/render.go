package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/mail"
	"regexp"
	"sort"
	"strings"

	"github.com/Jeffreasy/KoruFormsService/internal/domain"
)

var subjectToken = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// RenderSubject substitutes {{field}} tokens with submitted values. Tokens
// naming a field that was not submitted are left verbatim.
func RenderSubject(tmpl string, data domain.Fields) string {
	return subjectToken.ReplaceAllStringFunc(tmpl, func(tok string) string {
		key := subjectToken.FindStringSubmatch(tok)[1]
		if v, ok := data[key]; ok {
			return v.String()
		}
		return tok
	})
}

// FindReplyTo returns the first submitted value that sits under an email-like
// key and parses as an address. Keys are visited in form order, then sorted.
func FindReplyTo(fields []domain.Field, data domain.Fields) string {
	for _, key := range orderedKeys(fields, data) {
		if !isEmailKey(key) {
			continue
		}
		v := strings.TrimSpace(data.Get(key))
		if v == "" {
			continue
		}
		if addr, err := mail.ParseAddress(v); err == nil {
			return addr.Address
		}
	}
	return ""
}

func isEmailKey(key string) bool {
	k := strings.ToLower(key)
	return strings.Contains(k, "email") || strings.Contains(k, "e-mail") || strings.Contains(k, "mail")
}

// orderedKeys lists the data keys in form field order first, then any extra
// keys in lexical order.
func orderedKeys(fields []domain.Field, data domain.Fields) []string {
	seen := make(map[string]bool, len(data))
	keys := make([]string, 0, len(data))
	for _, f := range fields {
		if _, ok := data[f.ID]; ok && !seen[f.ID] {
			keys = append(keys, f.ID)
			seen[f.ID] = true
		}
	}
	var rest []string
	for k := range data {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

type row struct {
	Label string
	Value string
}

func rows(fields []domain.Field, data domain.Fields) []row {
	labels := make(map[string]string, len(fields))
	for _, f := range fields {
		if f.Label != "" {
			labels[f.ID] = f.Label
		}
	}
	out := make([]row, 0, len(data))
	for _, k := range orderedKeys(fields, data) {
		label := labels[k]
		if label == "" {
			label = k
		}
		out = append(out, row{Label: label, Value: data.Get(k)})
	}
	return out
}

var notificationHTML = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html><body style="font-family:sans-serif">
<h2>{{.Title}}</h2>
<table cellpadding="6" style="border-collapse:collapse">
{{range .Rows}}<tr><td style="font-weight:bold;vertical-align:top">{{.Label}}</td><td style="white-space:pre-wrap">{{.Value}}</td></tr>
{{end}}</table>
{{if .Source}}<p style="color:#888;font-size:12px">Sent from {{.Source}}</p>{{end}}
</body></html>`))

func renderNotification(title string, fields []domain.Field, data, meta domain.Fields) (string, string, error) {
	rs := rows(fields, data)
	source := meta.Get("url")

	var text strings.Builder
	fmt.Fprintf(&text, "%s\n\n", title)
	for _, r := range rs {
		fmt.Fprintf(&text, "%s: %s\n", r.Label, r.Value)
	}
	if source != "" {
		fmt.Fprintf(&text, "\nSent from %s\n", source)
	}

	var html bytes.Buffer
	err := notificationHTML.Execute(&html, struct {
		Title  string
		Rows   []row
		Source string
	}{title, rs, source})
	if err != nil {
		return "", "", fmt.Errorf("render notification: %w", err)
	}
	return text.String(), html.String(), nil
}

func renderAutoresponder(formName, successMsg string) string {
	msg := strings.TrimSpace(successMsg)
	if msg == "" {
		msg = "Thank you for your message. We will get back to you as soon as possible."
	}
	if formName == "" {
		return msg + "\n"
	}
	return fmt.Sprintf("%s\n\n(%s)\n", msg, formName)
}
