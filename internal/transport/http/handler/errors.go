package handler

const (
	errInternalServer      = "Internal server error"
	errJobNotFound         = "Forecast job not found"
	errDuplicateJob        = "An active forecast job already exists for this type and target date"
	errJobNotRequeueable   = "Job is not in a requeueable state"
	errNotificationMissing = "Notification not found"
)
