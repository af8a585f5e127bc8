package email

import (
	"context"

	"notification-service/internal/templates"

	"github.com/sirupsen/logrus"
)

// Channel renders a template and hands the result to the transport.
type Channel struct {
	renderer  templates.Renderer
	transport Transport
	log       logrus.FieldLogger
}

func NewChannel(renderer templates.Renderer, transport Transport, log logrus.FieldLogger) *Channel {
	return &Channel{renderer: renderer, transport: transport, log: log}
}

// Send returns the rendered message together with the delivery error, so
// callers can log the subject of failed attempts.
func (c *Channel) Send(ctx context.Context, to, category, name string, vars map[string]string) (templates.Rendered, error) {
	rendered, err := c.renderer.Render(category, name, vars)
	if err != nil {
		return templates.Rendered{}, err
	}

	if err := c.transport.Send(ctx, to, rendered.Subject, rendered.HTML, rendered.Text); err != nil {
		c.log.WithFields(logrus.Fields{"recipient": to, "template": category + "/" + name}).WithError(err).Warn("email delivery failed")
		return rendered, err
	}
	return rendered, nil
}
