package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomExists     = errors.New("room already exists")
	ErrInvalidRoomID  = errors.New("invalid room id: use 1-64 characters A-Z, 0-9, '_' or '-'")
	ErrInvalidStroke  = errors.New("invalid stroke")
	ErrEmptyStroke    = errors.New("stroke has no points")
	ErrStrokeNotFound = errors.New("stroke not found in room log")
)
