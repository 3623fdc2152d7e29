package models

import (
	"errors"
	"fmt"
)

var (
	// ErrAcquisitionTimeout 等待可用浏览器超时
	ErrAcquisitionTimeout = errors.New("获取浏览器实例超时")
	// ErrNoAccountAvailable 没有可用账号
	ErrNoAccountAvailable = errors.New("没有可用的账号")
	// ErrAccountNotFound 账号不存在
	ErrAccountNotFound = errors.New("账号不存在")
	// ErrWorkerLaunchFailure 浏览器启动失败
	ErrWorkerLaunchFailure = errors.New("浏览器启动失败")
	// ErrSessionOperation 浏览器会话操作失败(可恢复)
	ErrSessionOperation = errors.New("浏览器操作失败")
	// ErrTargetIdentifierInvalid 目标标识无效
	ErrTargetIdentifierInvalid = errors.New("无效的目标标识")
	// ErrInvalidAccount 账号参数不合法
	ErrInvalidAccount = errors.New("账号参数不合法")
	// ErrPoolClosed 浏览器池已关闭
	ErrPoolClosed = errors.New("浏览器池已关闭")
)

// SessionError 会话操作错误,携带操作名与实例ID
type SessionError struct {
	Op       string
	WorkerID string
	Err      error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("%s [%s] %s: %v", ErrSessionOperation.Error(), e.WorkerID, e.Op, e.Err)
}

// Unwrap 同时匹配 ErrSessionOperation 与底层原因
func (e *SessionError) Unwrap() []error {
	return []error{ErrSessionOperation, e.Err}
}
