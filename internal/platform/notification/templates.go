package notification

const (
	TemplateLinkStatusChanged   = "link-status-changed"
	TemplateConnectionRequested = "connection-requested"
	TemplateConnectionResolved  = "connection-resolved"
	TemplateVitalRecorded       = "vital-recorded"
)

var builtInTemplates = []Template{
	{
		ID:      TemplateLinkStatusChanged,
		Subject: "Your care link is now {{status}}",
		Body: `<p>Hello {{name}},</p>
<p>The {{kind}} link between {{subject_name}} and {{patient_name}} is now <strong>{{status}}</strong>.</p>
<p>If you did not expect this change, contact your care coordinator.</p>`,
		Push: "The {{kind}} link with {{other_name}} is now {{status}}.",
	},
	{
		ID:      TemplateConnectionRequested,
		Subject: "{{caregiver_name}} wants to join your care team",
		Body: `<p>Hello {{name}},</p>
<p>{{caregiver_name}} has asked to be connected to you as your {{relationship}}.</p>
<blockquote>{{message}}</blockquote>
<p><a href="{{accept_url}}">Approve</a> &middot; <a href="{{reject_url}}">Decline</a></p>`,
		Push: "{{caregiver_name}} sent you a connection request.",
	},
	{
		ID:      TemplateConnectionResolved,
		Subject: "Your connection request was {{outcome}}",
		Body: `<p>Hello {{name}},</p>
<p>{{patient_name}} has {{outcome}} your connection request.</p>`,
		Push: "{{patient_name}} {{outcome}} your connection request.",
	},
	{
		ID:      TemplateVitalRecorded,
		Subject: "New {{vital_type}} reading for {{patient_name}}",
		Body: `<p>Hello {{name}},</p>
<p>A new {{vital_type}} reading of {{value}} {{unit}} was recorded for {{patient_name}}.</p>`,
		Push: "{{patient_name}}: {{vital_type}} {{value}} {{unit}}",
	},
}
