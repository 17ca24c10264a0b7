package core

import (
	"bytes"
	"encoding/base64"
	htmltmpl "html/template"
	"io"
	"io/fs"
	"net/http"
	"net/mail"
	"path"
	"strings"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/darasa/fs"
)

const emailTemplatesDir = "assets/templates/email"

type (
	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		ReplyTo     *mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}

	// EmailTemplates holds the parsed email templates, keyed by name.
	EmailTemplates struct {
		appName         string
		frontendBaseURL string
		text            map[string]*texttmpl.Template
		html            map[string]*htmltmpl.Template
	}
)

// NewEmailTemplates parses every email template embedded in the binary.
// Files starting with "_" are layouts shared by the other templates.
func NewEmailTemplates(conf *Config) (*EmailTemplates, error) {
	tmpls := &EmailTemplates{
		appName:         conf.AppName,
		frontendBaseURL: conf.FrontendBaseURL,
		text:            make(map[string]*texttmpl.Template),
		html:            make(map[string]*htmltmpl.Template),
	}
	strict := conf.Debug || conf.TestMode

	entries, err := fs.ReadDir(appfs.FS, emailTemplatesDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading email templates")
	}
	for _, entry := range entries {
		fname := entry.Name()
		ext := path.Ext(fname)
		if entry.IsDir() || strings.HasPrefix(fname, "_") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		fp := path.Join(emailTemplatesDir, fname)

		switch ext {
		case ".txt":
			tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.txt"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.text[name] = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(emailTemplatesDir, "_base.gohtml"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.html[name] = tmpl
		}
	}
	return tmpls, nil
}

func (t *EmailTemplates) contextData(m *EmailMessage) ContextData {
	return ContextData{
		AppName:         t.appName,
		FrontendBaseURL: t.frontendBaseURL,
		Data:            m.TemplateData,
	}
}

// Render fills TextContent and HTMLContent from the message template (or BodyStr).
func (t *EmailTemplates) Render(m *EmailMessage) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	}
	if m.TemplateName == "" {
		return nil
	}

	if tmpl, ok := t.text[m.TemplateName]; ok && m.BodyStr == "" {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, t.contextData(m)); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}
	if tmpl, ok := t.html[m.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, t.contextData(m)); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := io.ReadAll(r)
	if err != nil {
		return errors.Wrap(err, "reading attachment")
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}
	encoder := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := encoder.Write(content); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}
	if err := encoder.Close(); err != nil {
		return errors.Wrap(err, "encoding attachment")
	}

	if len(ct) > 0 {
		at.ContentType = ct[0]
	} else {
		at.ContentType = http.DetectContentType(content)
	}
	m.Attachments = append(m.Attachments, at)
	return nil
}

func (m *EmailMessage) HasRecipients() bool  { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool     { return (m.TextContent != "") || (m.HTMLContent != "") }
func (m *EmailMessage) HasAttachments() bool { return len(m.Attachments) > 0 }
