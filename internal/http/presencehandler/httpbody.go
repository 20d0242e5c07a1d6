package presencehandler

import "chatrelay/internal/presence"

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Users       int    `json:"users"`
	Rooms       int    `json:"rooms"`
}

type UsersResponse struct {
	Users []presence.UserRecord `json:"users"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
