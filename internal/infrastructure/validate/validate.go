// Package validate 初始化 gin 的参数校验引擎
// HTTP 与 WebSocket 两条入口共用同一套校验规则和错误翻译
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"chatsphere_server/internal/service/room"
	"chatsphere_server/internal/service/session"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
)

// rule 自定义校验标签及其中英文提示
type rule struct {
	tag   string
	valid func(string) bool
	zh    string
	en    string
}

var rules = []rule{
	{"room_type", func(s string) bool { return room.Type(s).Valid() }, "{0}不是有效的房间类型", "{0} must be a valid room type"},
	{"room_role", func(s string) bool { return room.Role(s).Valid() }, "{0}不是有效的角色", "{0} must be a valid role"},
	{"presence", func(s string) bool { return room.Presence(s).Valid() }, "{0}不是有效的在线状态", "{0} must be a valid presence status"},
	{"action_kind", func(s string) bool { return room.ActionKind(s).Valid() }, "{0}不是有效的审核动作", "{0} must be a valid moderation action"},
	{"recording_policy", func(s string) bool { return room.RecordingPolicy(s).Valid() }, "{0}不是有效的录制策略", "{0} must be a valid recording policy"},
	{"session_type", func(s string) bool { return session.Type(s).Valid() }, "{0}不是有效的会话类型", "{0} must be a valid session type"},
	{"conn_state", func(s string) bool { return session.ConnState(s).Valid() }, "{0}不是有效的连接状态", "{0} must be a valid connection state"},
}

var (
	once    sync.Once
	initErr error
	trans   ut.Translator
)

// Init 注册自定义规则和 locale 对应的翻译，只在第一次调用时生效
func Init(locale string) error {
	once.Do(func() { initErr = setup(locale) })
	return initErr
}

func setup(locale string) error {
	if binding.Validator == nil {
		v := validator.New()
		v.SetTagName("binding")
		binding.Validator = &defaultValidator{validator: v}
	}
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}

	// 错误信息使用 json 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, r := range rules {
		valid := r.valid
		if err := v.RegisterValidation(r.tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}); err != nil {
			return err
		}
	}

	enT := en.New()
	uni := ut.New(enT, zh.New(), enT)
	t, ok := uni.GetTranslator(locale)
	if !ok {
		return fmt.Errorf("uni.GetTranslator(%s) failed", locale)
	}

	var err error
	if locale == "zh" {
		err = zh_translations.RegisterDefaultTranslations(v, t)
	} else {
		err = en_translations.RegisterDefaultTranslations(v, t)
	}
	if err != nil {
		return err
	}
	for _, r := range rules {
		text := r.en
		if locale == "zh" {
			text = r.zh
		}
		if err := v.RegisterTranslation(r.tag, t, registerText(r.tag, text), translateField); err != nil {
			return err
		}
	}
	trans = t
	return nil
}

func registerText(tag, text string) validator.RegisterTranslationsFunc {
	return func(t ut.Translator) error {
		return t.Add(tag, text, true)
	}
}

func translateField(t ut.Translator, fe validator.FieldError) string {
	msg, err := t.T(fe.Tag(), fe.Field())
	if err != nil {
		return fe.Error()
	}
	return msg
}

// Translate 把校验错误翻译为 字段 -> 提示，字段名去掉结构体前缀
// 不是校验错误或尚未初始化时返回 false
func Translate(err error) (map[string]string, bool) {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || trans == nil {
		return nil, false
	}
	return removeTopStruct(errs.Translate(trans)), true
}

// Message 把校验错误拼成一行提示，按字段名排序
func Message(err error) string {
	fields, ok := Translate(err)
	if !ok {
		return err.Error()
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fields[k])
	}
	return strings.Join(parts, "; ")
}

func removeTopStruct(fields map[string]string) map[string]string {
	res := make(map[string]string, len(fields))
	for field, msg := range fields {
		res[field[strings.Index(field, ".")+1:]] = msg
	}
	return res
}

// defaultValidator gin 未初始化 binding.Validator 时的兜底实现
type defaultValidator struct {
	validator *validator.Validate
}

func (v *defaultValidator) ValidateStruct(obj any) error {
	return v.validator.Struct(obj)
}

func (v *defaultValidator) Engine() any {
	return v.validator
}
