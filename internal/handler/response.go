package handler

import (
	"errors"
	"net/http"

	"chatsphere_server/internal/infrastructure/validate"
	"chatsphere_server/pkg/errorx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseData 统一响应结构体 (用于 Swagger 文档生成)
type ResponseData struct {
	Code int `json:"code"`           // 业务响应状态码
	Msg  any `json:"msg"`            // 提示信息
	Data any `json:"data,omitempty"` // 数据
}

// httpStatus 业务错误码对应的 HTTP 状态码，未列出的业务错误按 400 返回
var httpStatus = map[int]int{
	errorx.CodeInvalidParam:         http.StatusBadRequest,
	errorx.CodeUnauthorized:         http.StatusUnauthorized,
	errorx.CodeNotFound:             http.StatusNotFound,
	errorx.CodeNotMember:            http.StatusForbidden,
	errorx.CodeForbidden:            http.StatusForbidden,
	errorx.CodeBanned:               http.StatusForbidden,
	errorx.CodeRoomFull:             http.StatusConflict,
	errorx.CodeAlreadyAuthenticated: http.StatusConflict,
	errorx.CodeRateLimited:          http.StatusTooManyRequests,
	errorx.CodeSettlementFailed:     http.StatusPaymentRequired,
	errorx.CodeServerBusy:           http.StatusInternalServerError,
	errorx.CodeDBError:              http.StatusInternalServerError,
	errorx.CodeCacheError:           http.StatusInternalServerError,
	errorx.CodeMQError:              http.StatusInternalServerError,
}

// StatusFor 业务错误码对应的 HTTP 状态码
func StatusFor(code int) int {
	if s, ok := httpStatus[code]; ok {
		return s
	}
	return http.StatusBadRequest
}

// HandleSuccess 返回成功响应
func HandleSuccess(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code": errorx.CodeSuccess,
		"msg":  "success",
		"data": data,
	})
}

// HandleError 通用错误处理方法
// errorx.CodeError 按错误码映射 HTTP 状态，例如 Banned -> 403、RoomFull -> 409、RateLimited -> 429；
// 其它错误记录日志后返回 CodeServerBusy
//
//	if err := h.chat.CloseRoom(roomID, userID); err != nil {
//	    HandleError(c, err)
//	    return
//	}
func HandleError(c *gin.Context, err error) {
	var codeErr *errorx.CodeError
	if errors.As(err, &codeErr) {
		if StatusFor(codeErr.Code) >= http.StatusInternalServerError {
			zap.L().Error("request failed",
				zap.String("path", c.Request.URL.Path),
				zap.Int("code", codeErr.Code),
				zap.Error(err),
			)
		}
		c.JSON(StatusFor(codeErr.Code), gin.H{
			"code": codeErr.Code,
			"msg":  codeErr.Msg,
			"data": nil,
		})
		return
	}

	zap.L().Error("system error",
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code": errorx.ErrServerBusy.Code,
		"msg":  errorx.ErrServerBusy.Msg,
		"data": nil,
	})
}

// HandleParamError 处理参数绑定错误
// 校验错误翻译为 字段 -> 提示，例如 {"type": "type不是有效的房间类型"}
func HandleParamError(c *gin.Context, err error) {
	if fields, ok := validate.Translate(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"code": errorx.ErrInvalidParam.Code,
			"msg":  fields,
			"data": nil,
		})
		return
	}

	// 非 validator 错误（如 JSON 格式错误）
	zap.L().Warn("param bind error", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{
		"code": errorx.ErrInvalidParam.Code,
		"msg":  errorx.ErrInvalidParam.Msg,
		"data": nil,
	})
}
