package goldentest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"golden-drift/internal/shared/storage"
)

// ErrNotFound 黄金测试不存在
var ErrNotFound = fmt.Errorf("golden test: %w", storage.ErrNotFound)

// ErrReplayUnavailable 未配置回放能力
var ErrReplayUnavailable = errors.New("golden test: replay capability not configured")

// ValidationError 输入校验失败，不会写入任何数据
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PersistenceFailure 存储层错误
//
// errors.Is 穿透到底层错误（如 storage.ErrConflict）。
type PersistenceFailure struct {
	Op  string
	Err error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error {
	return e.Err
}

func notFound(id string) error {
	return fmt.Errorf("%s: %w", id, ErrNotFound)
}

// ============================================================================
// 校验
// ============================================================================

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// 错误字段使用 JSON 名称
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct 返回第一个失败字段的 ValidationError
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		// 去掉顶层结构体名
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		return &ValidationError{Field: field, Reason: reason}
	}
	return &ValidationError{Field: "input", Reason: err.Error()}
}
