package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template renders the human-readable part of a message.
type Template struct {
	Subject string
	Body    string
}

// TemplateEngine renders {{key}} placeholders per event kind.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[Kind]Template
}

func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[Kind]Template)}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	e.templates[BookingCreated] = Template{
		Subject: "Appointment booked for {{date}} at {{start}}",
		Body:    "Your {{consultation_type}} appointment {{appointment_id}} is booked on {{date}} from {{start}} to {{end}}.",
	}
	e.templates[BookingCancelled] = Template{
		Subject: "Appointment on {{date}} cancelled",
		Body:    "Appointment {{appointment_id}} on {{date}} at {{start}} was cancelled. Reason: {{reason}}",
	}
	e.templates[BookingReminder] = Template{
		Subject: "Reminder: appointment on {{date}} at {{start}}",
		Body:    "This is a reminder of your {{consultation_type}} appointment {{appointment_id}} on {{date}} from {{start}} to {{end}}.",
	}
	e.templates[SessionStarted] = Template{
		Subject: "Your consultation has started",
		Body:    "The doctor has started the session for appointment {{appointment_id}}.",
	}
	e.templates[SessionEnded] = Template{
		Subject: "Your consultation has ended",
		Body:    "The session for appointment {{appointment_id}} has ended.",
	}
	e.templates[DocumentationSaved] = Template{
		Subject: "Visit notes available",
		Body:    "Visit documentation for appointment {{appointment_id}} is available.",
	}
	e.templates[PrescriptionCreated] = Template{
		Subject: "New prescription",
		Body:    "A prescription ({{item_count}} item(s)) was issued for appointment {{appointment_id}}.",
	}
}

func (e *TemplateEngine) Register(kind Kind, t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[kind] = t
}

// Render fills the template for evt.Kind with evt.Data plus appointment_id.
// Placeholders without data are left as-is.
func (e *TemplateEngine) Render(evt Event) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[evt.Kind]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("no template for event %q", evt.Kind)
	}

	pairs := []string{"{{appointment_id}}", evt.AppointmentID.String()}
	for k, v := range evt.Data {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	r := strings.NewReplacer(pairs...)
	return r.Replace(t.Subject), r.Replace(t.Body), nil
}
