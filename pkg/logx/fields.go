package logx

const (
	FieldCategory   = "category"
	FieldCount      = "count"
	FieldDurationMs = "duration-ms"
	FieldError      = "error"
	FieldOutcome    = "outcome"
	FieldPassID     = "pass-id"
	FieldRecipients = "recipients"
	FieldStage      = "stage"
	FieldURL        = "url"
)
