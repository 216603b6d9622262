package api

// PushRequest is the JSON body for POST /api/line/push.
type PushRequest struct {
	To      string `json:"to" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// PushResponse is returned when the platform accepted a push.
type PushResponse struct {
	Success bool `json:"success"`
}

// PushNotice is published on the events hub for each push attempt.
type PushNotice struct {
	To         string `json:"to"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Buffered      int    `json:"buffered"`
	Evicted       uint64 `json:"evicted"`
	Policy        string `json:"policy"`
}
