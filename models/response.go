// models/response.go
package models

// Response is the standard JSON envelope for all API responses
type Response struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
