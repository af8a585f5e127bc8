package templates

// Template keys used by the notification jobs.
const (
	CategoryCalendar   = "calendar"
	CategoryExpiration = "expiration"
	CategoryJudicial   = "judicial"
	CategoryInactivity = "inactivity"

	NameEventReminder      = "event-reminder"
	NameTaskDue            = "task-due"
	NameMovementExpiration = "movement-expiration"
	NameJudicialMovement   = "judicial-movement"
	NameFolderCaducity     = "folder-caducity"
	NameFolderPrescription = "folder-prescription"
)

const htmlLayoutStart = `<!DOCTYPE html><html><body style="font-family:Arial,sans-serif;color:#222">`
const htmlLayoutEnd = `<p style="color:#888;font-size:12px">Recibís este aviso según tus preferencias de notificación.</p></body></html>`

var defaults = map[string]Source{
	key(CategoryCalendar, NameEventReminder): {
		Subject: `Recordatorio: {{.title}} el {{.date}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>Tenés un evento próximo: <strong>{{.title}}</strong>.</p>
<p>Fecha: {{.date}}{{if .location}}<br>Lugar: {{.location}}{{end}}</p>
<p>Faltan {{.daysRemaining}} día(s).</p>` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

Tenés un evento próximo: {{.title}}.
Fecha: {{.date}}{{if .location}}
Lugar: {{.location}}{{end}}
Faltan {{.daysRemaining}} día(s).
`,
	},
	key(CategoryExpiration, NameTaskDue): {
		Subject: `Tarea por vencer: {{.title}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>La tarea <strong>{{.title}}</strong> vence el {{.date}}.</p>
<p>Faltan {{.daysRemaining}} día(s).</p>` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

La tarea {{.title}} vence el {{.date}}.
Faltan {{.daysRemaining}} día(s).
`,
	},
	key(CategoryExpiration, NameMovementExpiration): {
		Subject: `Movimiento por vencer: {{.title}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>El movimiento <strong>{{.title}}</strong>{{if .amount}} por {{.amount}}{{end}} vence el {{.date}}.</p>
<p>Faltan {{.daysRemaining}} día(s).</p>` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

El movimiento {{.title}}{{if .amount}} por {{.amount}}{{end}} vence el {{.date}}.
Faltan {{.daysRemaining}} día(s).
`,
	},
	key(CategoryJudicial, NameJudicialMovement): {
		Subject: `Nuevo movimiento en expediente {{.caseNumber}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>Se registró un movimiento en el expediente <strong>{{.caseNumber}}</strong>{{if .court}} ({{.court}}){{end}}.</p>
<p>Tipo: {{.movementType}}<br>Fecha: {{.date}}</p>
{{if .detail}}<p>{{.detail}}</p>{{end}}{{if .link}}<p><a href="{{.link}}">Ver movimiento</a></p>{{end}}` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

Se registró un movimiento en el expediente {{.caseNumber}}{{if .court}} ({{.court}}){{end}}.
Tipo: {{.movementType}}
Fecha: {{.date}}
{{if .detail}}{{.detail}}
{{end}}{{if .link}}Ver movimiento: {{.link}}
{{end}}`,
	},
	key(CategoryInactivity, NameFolderCaducity): {
		Subject: `Caducidad próxima: {{.title}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>La carpeta <strong>{{.title}}</strong> no registra actividad desde el {{.lastActivity}}.</p>
<p>La caducidad de instancia opera el {{.date}}: faltan {{.daysRemaining}} día(s).</p>` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

La carpeta {{.title}} no registra actividad desde el {{.lastActivity}}.
La caducidad de instancia opera el {{.date}}: faltan {{.daysRemaining}} día(s).
`,
	},
	key(CategoryInactivity, NameFolderPrescription): {
		Subject: `Prescripción próxima: {{.title}}`,
		HTML: htmlLayoutStart + `<p>Hola {{.userName}},</p>
<p>La carpeta <strong>{{.title}}</strong> no registra actividad desde el {{.lastActivity}}.</p>
<p>La prescripción opera el {{.date}}: faltan {{.daysRemaining}} día(s).</p>` + htmlLayoutEnd,
		Text: `Hola {{.userName}},

La carpeta {{.title}} no registra actividad desde el {{.lastActivity}}.
La prescripción opera el {{.date}}: faltan {{.daysRemaining}} día(s).
`,
	},
}
