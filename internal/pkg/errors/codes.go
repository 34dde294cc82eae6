package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrUnauthorized    = 1003
	ErrForbidden       = 1004
	ErrConflict        = 1005
	ErrTooManyRequests = 1006
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008

	// Auth errors (2000-2999)
	ErrAuthInvalidToken = 2000
	ErrAuthTokenExpired = 2001
	ErrAuthAdminOnly    = 2002

	// Storage admission errors (3000-3999)
	ErrValidation         = 3000
	ErrQuotaExceeded      = 3001
	ErrNoBackendAvailable = 3002
	ErrInvalidOperation   = 3003
	ErrFileTooLarge       = 3004
	ErrInvalidFileType    = 3005

	// Backend registry errors (4000-4999)
	ErrBackendNotFound    = 4000
	ErrBackendInactive    = 4001
	ErrBackendExists      = 4002
	ErrBackendInvalidKind = 4003
	ErrBackendBadCreds    = 4004
	ErrBackendProbeFailed = 4005

	// File/folder errors (5000-5999)
	ErrFileNotFound     = 5000
	ErrFolderNotFound   = 5001
	ErrFolderNameTaken  = 5002
	ErrCyclicFolderMove = 5003
	ErrVersionNotFound  = 5004
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrUnauthorized:    {ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	ErrForbidden:       {ErrForbidden, http.StatusForbidden, "Forbidden"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},

	// Auth errors
	ErrAuthInvalidToken: {ErrAuthInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	ErrAuthTokenExpired: {ErrAuthTokenExpired, http.StatusUnauthorized, "Token expired"},
	ErrAuthAdminOnly:    {ErrAuthAdminOnly, http.StatusForbidden, "Administrator privileges required"},

	// Storage admission errors
	ErrValidation:         {ErrValidation, http.StatusBadRequest, "Validation failed"},
	ErrQuotaExceeded:      {ErrQuotaExceeded, http.StatusForbidden, "Storage quota exceeded"},
	ErrNoBackendAvailable: {ErrNoBackendAvailable, http.StatusServiceUnavailable, "No healthy storage backend available"},
	ErrInvalidOperation:   {ErrInvalidOperation, http.StatusBadRequest, "Invalid operation"},
	ErrFileTooLarge:       {ErrFileTooLarge, http.StatusBadRequest, "File size exceeds limit"},
	ErrInvalidFileType:    {ErrInvalidFileType, http.StatusBadRequest, "Unsupported file type"},

	// Backend registry errors
	ErrBackendNotFound:    {ErrBackendNotFound, http.StatusNotFound, "Storage backend not found"},
	ErrBackendInactive:    {ErrBackendInactive, http.StatusConflict, "Storage backend is inactive"},
	ErrBackendExists:      {ErrBackendExists, http.StatusConflict, "Storage backend already exists"},
	ErrBackendInvalidKind: {ErrBackendInvalidKind, http.StatusBadRequest, "Invalid storage backend kind"},
	ErrBackendBadCreds:    {ErrBackendBadCreds, http.StatusBadRequest, "Invalid backend credentials"},
	ErrBackendProbeFailed: {ErrBackendProbeFailed, http.StatusBadGateway, "Backend health probe failed"},

	// File/folder errors
	ErrFileNotFound:     {ErrFileNotFound, http.StatusNotFound, "File not found"},
	ErrFolderNotFound:   {ErrFolderNotFound, http.StatusNotFound, "Folder not found"},
	ErrFolderNameTaken:  {ErrFolderNameTaken, http.StatusConflict, "A folder with this name already exists"},
	ErrCyclicFolderMove: {ErrCyclicFolderMove, http.StatusBadRequest, "Cannot move a folder into its own subtree"},
	ErrVersionNotFound:  {ErrVersionNotFound, http.StatusNotFound, "File version not found"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsSuccess checks if the code represents success
func IsSuccess(code int) bool {
	return code == Success
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
