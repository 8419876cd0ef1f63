package line

import "errors"

var (
	ErrMissingReplyToken = errors.New("missing reply token")
	ErrMissingRecipient  = errors.New("missing recipient")
	ErrAPIStatus         = errors.New("unexpected api status")
)
