package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/bissquit/incident-escalator/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// Template formats. Several channel kinds share one format.
const (
	formatShort = "short"
	formatEmail = "email"
	formatChat  = "chat"
)

// Renderer renders notifications from templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer creates a new renderer and loads all templates.
func NewRenderer() (*Renderer, error) {
	funcMap := template.FuncMap{
		"title":        titleCase,
		"upper":        strings.ToUpper,
		"formatTime":   formatTime,
		"urgencyEmoji": urgencyEmoji,
		"eventEmoji":   eventEmoji,
	}

	r := &Renderer{
		templates: make(map[string]*template.Template),
	}

	for _, name := range []string{formatShort, formatEmail, formatChat} {
		filename := fmt.Sprintf("templates/%s.tmpl", name)

		content, err := templatesFS.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", filename, err)
		}

		tmpl, err := template.New(name).Funcs(funcMap).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders a notification payload for the specified channel kind.
// Returns subject and body.
func (r *Renderer) Render(kind domain.ChannelKind, payload NotificationPayload) (subject, body string, err error) {
	subject = renderSubject(payload)

	name := formatFor(kind)
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("template not found: %s", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, payload); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", name, err)
	}

	body = strings.TrimSpace(buf.String())
	return subject, body, nil
}

func formatFor(kind domain.ChannelKind) string {
	switch kind {
	case domain.ChannelKindEmail:
		return formatEmail
	case domain.ChannelKindSlackWebhook, domain.ChannelKindSlackAPI:
		return formatChat
	default:
		return formatShort
	}
}

// renderSubject generates the notification subject line.
func renderSubject(payload NotificationPayload) string {
	prefix := titleCase(string(payload.Event))
	if payload.Event == EventEscalated && payload.Step > 0 {
		prefix = fmt.Sprintf("Escalated L%d", payload.Step)
	}
	return fmt.Sprintf("[%s] %s", prefix, payload.Incident.Title)
}

// Template functions

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func formatTime(v any) string {
	var t time.Time
	switch tv := v.(type) {
	case time.Time:
		t = tv
	case *time.Time:
		if tv == nil {
			return ""
		}
		t = *tv
	default:
		return ""
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 UTC")
}

func urgencyEmoji(urgency domain.Urgency) string {
	switch urgency {
	case domain.UrgencyHigh:
		return "🔴"
	case domain.UrgencyMedium:
		return "🟠"
	case domain.UrgencyLow:
		return "🟡"
	default:
		return "⚪"
	}
}

func eventEmoji(event EventKind) string {
	switch event {
	case EventTriggered, EventEscalated, EventReopened:
		return "🚨"
	case EventAcknowledged:
		return "⚠️"
	case EventResolved:
		return "✅"
	case EventSnoozed, EventSuppressed:
		return "💤"
	default:
		return "📋"
	}
}
