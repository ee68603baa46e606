package service

import "errors"

// Sentinel errors for the service layer. The API layer maps these onto HTTP
// statuses; everything else is treated as an internal error.
var (
	ErrNotFound             = errors.New("not found")
	ErrExpired              = errors.New("this link has expired")
	ErrAuthRequired         = errors.New("authentication required")
	ErrAuthFailed           = errors.New("authentication failed")
	ErrUnknownEmail         = errors.New("this mail address is not registered")
	ErrMaxFilesReached      = errors.New("the maximum number of files has been reached")
	ErrMaxTotalSizeExceeded = errors.New("the total file size limit has been reached")
	ErrDownloadLimitReached = errors.New("the download limit has been reached")
	ErrValidation           = errors.New("validation failed")
)
