package service

import "errors"

var (
	ErrRoomNotFound         = errors.New("room not found")
	ErrInvalidRoomName      = errors.New("invalid room name")
	ErrSlugGenerationFailed = errors.New("failed to generate unique room slug after multiple attempts")
	ErrMissingSession       = errors.New("sessionId required")
	ErrInvalidSession       = errors.New("invalid session")
	ErrInvalidAccountName   = errors.New("invalid account name")
)
