package room

import "errors"

var (
	ErrInvalidName    = errors.New("invalid_player_name")
	ErrRoomNotFound   = errors.New("room_not_found")
	ErrRoomNotWaiting = errors.New("room_not_waiting")
	ErrRoomFull       = errors.New("room_full")
	ErrDuplicateName  = errors.New("duplicate_player_name")
	ErrPlayerNotFound = errors.New("player_not_found")
	ErrInvalidStatus  = errors.New("invalid_status")
)
