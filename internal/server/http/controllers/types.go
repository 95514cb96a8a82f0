package controllers

// controlReq is the body of POST /v1/sessions/control.
type controlReq struct {
	SessionID string `json:"session_id"`
	Action    string `json:"action"`
}
