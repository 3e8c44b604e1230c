package service

import "errors"

// 错误口径，handler 负责翻译成 HTTP 状态码
var (
	ErrUnauthorized    = errors.New("unauthorized terminal token")
	ErrDuplicateEvent  = errors.New("duplicate trade event")
	ErrAlreadyRecorded = errors.New("outcome already recorded")
	ErrRelationInvalid = errors.New("relation invalid")
	ErrUnknownTrade    = errors.New("unknown trade")
	ErrUnknownSlave    = errors.New("unknown slave status")
)
