package dto

import "net/http"

type BaseResponse struct {
	Code     int         `json:"code"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
	Errors   interface{} `json:"errors,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

func NewBaseResponse(code int, message string, data interface{}) *BaseResponse {
	return &BaseResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func NewBadRequestResponse(message string) *BaseResponse {
	return NewBaseResponse(http.StatusBadRequest, message, nil)
}

func NewSuccessResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusOK, message, data)
}

func NewCreatedResponse(message string, data interface{}) *BaseResponse {
	return NewBaseResponse(http.StatusCreated, message, data)
}

// NewErrorResponse carries field-level details alongside the message.
func NewErrorResponse(code int, message string, details interface{}) *BaseResponse {
	resp := NewBaseResponse(code, message, nil)
	resp.Errors = details
	return resp
}
