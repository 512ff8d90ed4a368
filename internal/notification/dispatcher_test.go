package notification

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventis/backstage-api/internal/config"
	"github.com/eventis/backstage-api/internal/models"
)

func TestNewSMTPDispatcher_RequiresHostAndFrom(t *testing.T) {
	t.Parallel()

	_, err := NewSMTPDispatcher(config.EmailConfig{From: "noreply@example.com"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewSMTPDispatcher(config.EmailConfig{SMTPHost: "smtp.example.com"}, zerolog.Nop())
	assert.Error(t, err)

	d, err := NewSMTPDispatcher(config.EmailConfig{
		SMTPHost: "smtp.example.com",
		From:     "noreply@example.com",
	}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 587, d.port, "default SMTP port")
}

func TestBuildMessage_MultipartWithBothBodies(t *testing.T) {
	t.Parallel()

	message, err := buildMessage("noreply@example.com", Email{
		To:       "u1@example.com",
		Subject:  "[URGENT] Demande de caution",
		TextBody: "Demande de caution\n/projects/p1\n",
		HTMLBody: `<p>Demande de caution</p><p><a href="/projects/p1">Voir dans le tableau de bord</a></p>`,
	})
	require.NoError(t, err)

	raw := string(message)
	assert.Contains(t, raw, "Subject: [URGENT] Demande de caution")
	assert.Contains(t, raw, "To: u1@example.com")
	assert.Contains(t, raw, "Content-Type: multipart/alternative")
	assert.Contains(t, raw, `text/plain; charset="UTF-8"`)
	assert.Contains(t, raw, `text/html; charset="UTF-8"`)
	assert.Contains(t, raw, "Demande de caution")
	assert.Contains(t, raw, `<a href="/projects/p1">`)
}

func TestBuildEscalationEmail_SubjectCarriesLevelPrefix(t *testing.T) {
	t.Parallel()

	email := buildEscalationEmail("u1@example.com", models.Notification{
		Level:   models.LevelDeadline,
		Message: "La tâche arrive à échéance",
		Link:    "/projects/p1/tasks/t1",
	})

	assert.Equal(t, "[DEADLINE] La tâche arrive à échéance", email.Subject)
	assert.Contains(t, email.TextBody, "/projects/p1/tasks/t1")
	assert.Contains(t, email.HTMLBody, `href="/projects/p1/tasks/t1"`)
}

func TestBuildEscalationEmail_EscapesHTML(t *testing.T) {
	t.Parallel()

	email := buildEscalationEmail("u1@example.com", models.Notification{
		Level:   models.LevelUrgent,
		Message: `Projet <Gala> & "Co"`,
	})

	assert.Contains(t, email.HTMLBody, "&lt;Gala&gt;")
	assert.NotContains(t, email.HTMLBody, "<Gala>")
}
