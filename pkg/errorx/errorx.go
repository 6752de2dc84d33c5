package errorx

import (
	"errors"
	"fmt"
)

// CodeError 带业务错误码的自定义错误
// 实现了 error 接口，支持 %w 包装底层错误，且能被 errors.Is/errors.As 识别
type CodeError struct {
	Code  int    // 业务错误码
	Msg   string // 错误消息
	cause error  // 被包装的底层错误
}

// Error 返回格式为 "消息: 底层错误"；没有底层错误时仅返回消息
func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.cause)
	}
	return e.Msg
}

// Unwrap 实现 errors.Unwrap 接口，支持 errors.Is/errors.As 向下追溯
func (e *CodeError) Unwrap() error {
	return e.cause
}

// Is 按错误码比较，使 errors.Is(err, errorx.ErrBanned) 对任何同码错误成立
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New 创建一个新的 CodeError
func New(code int, msg string) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  msg,
	}
}

// Newf 创建一个带格式化消息的 CodeError
func Newf(code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// Wrap 包装底层错误，添加业务错误码和消息
// 用法: errorx.Wrap(err, CodeDBError, "写入审计日志")
func Wrap(err error, code int, msg string) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   msg,
		cause: err,
	}
}

// Wrapf 包装底层错误，支持格式化消息
// 用法: errorx.Wrapf(err, CodeNotFound, "房间 %s 不存在", roomId)
func Wrapf(err error, code int, format string, args ...any) *CodeError {
	return &CodeError{
		Code:  code,
		Msg:   fmt.Sprintf(format, args...),
		cause: err,
	}
}

// GetCode 从错误中提取业务错误码，如果不是 CodeError 则返回默认码
func GetCode(err error) int {
	var codeErr *CodeError
	if errors.As(err, &codeErr) {
		return codeErr.Code
	}
	return CodeServerBusy // 默认返回服务繁忙
}

// 业务状态码常量定义
const (
	CodeSuccess              = 1000 // 成功
	CodeInvalidParam         = 1001 // 请求参数错误
	CodeServerBusy           = 1005 // 服务繁忙
	CodeUnauthorized         = 1006 // 未授权/认证失败
	CodeNotFound             = 1008 // 房间/消息/会话不存在
	CodeDBError              = 1010 // 数据库错误
	CodeCacheError           = 1011 // 缓存错误
	CodeMQError              = 1012 // 消息队列错误
	CodeNotMember            = 2001 // 不是房间成员
	CodeForbidden            = 2002 // 是成员但缺少权限
	CodeRoomFull             = 2003 // 房间已满
	CodeBanned               = 2004 // 已被封禁
	CodeRateLimited          = 2005 // 触发限流
	CodeAlreadyAuthenticated = 2006 // 连接已绑定身份
	CodeSettlementFailed     = 2007 // 支付结算失败
)

// 预定义常用错误实例
// 这些实例既可直接返回，也可用于 errors.Is 比较
var (
	ErrInvalidParam         = New(CodeInvalidParam, "请求参数错误")
	ErrServerBusy           = New(CodeServerBusy, "服务繁忙")
	ErrUnauthorized         = New(CodeUnauthorized, "未认证")
	ErrNotFound             = New(CodeNotFound, "资源不存在")
	ErrNotMember            = New(CodeNotMember, "不是房间成员")
	ErrForbidden            = New(CodeForbidden, "权限不足")
	ErrRoomFull             = New(CodeRoomFull, "房间已满")
	ErrBanned               = New(CodeBanned, "已被封禁")
	ErrRateLimited          = New(CodeRateLimited, "操作过于频繁")
	ErrAlreadyAuthenticated = New(CodeAlreadyAuthenticated, "连接已认证")
	ErrSettlementFailed     = New(CodeSettlementFailed, "支付失败")
)

// IsNotFound 检查错误是否为"未找到"类型
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
