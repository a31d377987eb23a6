package core

import (
	"bytes"
	"encoding/base64"
	htmltmpl "html/template"
	"io"
	"io/ioutil"
	"net/http"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/eminingcampus/campus/fs"
)

var templatesDir = "templates/email"

type (
	Attachment struct {
		Content     *bytes.Buffer // base64 encoded
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
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
		AppName string
		SiteURL string
		Data    interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// EmailTemplates holds the parsed email templates, keyed by template name.
type EmailTemplates struct {
	appName string
	siteURL string
	text    map[string]*texttmpl.Template
	html    map[string]*htmltmpl.Template
}

var (
	tmplOnce  sync.Once
	tmplCache *EmailTemplates
	tmplErr   error
)

// ParseEmailTemplates parses the embedded email templates once.
// strict makes missing keys fail rendering (DEV & TEST).
func ParseEmailTemplates(conf *Config) (*EmailTemplates, error) {
	tmplOnce.Do(func() {
		tmplCache, tmplErr = parseEmailTemplates(conf.AppName, conf.SiteURL, conf.Debug || conf.TestMode)
	})
	return tmplCache, tmplErr
}

func parseEmailTemplates(appName, siteURL string, strict bool) (*EmailTemplates, error) {
	tmpls := &EmailTemplates{
		appName: appName,
		siteURL: siteURL,
		text:    make(map[string]*texttmpl.Template),
		html:    make(map[string]*htmltmpl.Template),
	}

	entries, err := appfs.FS.ReadDir(templatesDir)
	if err != nil {
		return nil, errors.Wrap(err, "reading email templates")
	}
	for _, entry := range entries {
		fname := entry.Name()
		ext := path.Ext(fname)
		if entry.IsDir() || strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		fp := path.Join(templatesDir, fname)

		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(appfs.FS, path.Join(templatesDir, "_base.txt"), fp)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing %s", fname)
			}
			if strict {
				tmpl = tmpl.Option("missingkey=error")
			}
			tmpls.text[name] = tmpl
		} else {
			tmpl, err := htmltmpl.ParseFS(appfs.FS, path.Join(templatesDir, "_base.gohtml"), fp)
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

// Render fills TextContent & HTMLContent from BodyStr or the message templates.
func (t *EmailTemplates) Render(m *EmailMessage) error {
	data := ContextData{AppName: t.appName, SiteURL: t.siteURL, Data: m.TemplateData}

	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
	} else if tmpl, ok := t.text[m.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.txt", m.TemplateName)
		}
		m.TextContent = buff.String()
	}

	if tmpl, ok := t.html[m.TemplateName]; ok {
		var buff bytes.Buffer
		if err := tmpl.Execute(&buff, data); err != nil {
			return errors.Wrapf(err, "rendering %s.gohtml", m.TemplateName)
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) Attach(r io.Reader, filename string, ct ...string) error {
	content, err := ioutil.ReadAll(r)
	if err != nil {
		return err
	}

	at := Attachment{Filename: filename, Content: new(bytes.Buffer)}
	encoder := base64.NewEncoder(base64.StdEncoding, at.Content)
	if _, err := encoder.Write(content); err != nil {
		return err
	}
	if err := encoder.Close(); err != nil {
		return err
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
