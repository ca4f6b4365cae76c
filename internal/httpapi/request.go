package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/yourusername/funnel-research/internal/funnel"
)

func init() {
	// エラーメッセージに JSON のフィールド名を使う
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	}
}

// analysisRequest は POST /api/v1/funnel-analysis のリクエストボディです。
type analysisRequest struct {
	Description     string `json:"description" binding:"required,min=10"`
	CoreService     string `json:"core_service" binding:"required,min=2"`
	TargetAudience  string `json:"target_audience"`
	Location        string `json:"location"`
	CorePhrase      string `json:"core_phrase" binding:"required,min=2"`
	IncludeLocal    *bool  `json:"include_local"`
	IncludeNational *bool  `json:"include_national"`
	MaxCompetitors  *int   `json:"max_competitors" binding:"omitempty,min=1,max=50"`
}

// bindAnalysisRequest は JSON を読み込み、前後の空白を除いた値で検証します。
func bindAnalysisRequest(c *gin.Context, req *analysisRequest) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return err
	}
	req.Description = strings.TrimSpace(req.Description)
	req.CoreService = strings.TrimSpace(req.CoreService)
	req.TargetAudience = strings.TrimSpace(req.TargetAudience)
	req.Location = strings.TrimSpace(req.Location)
	req.CorePhrase = strings.TrimSpace(req.CorePhrase)
	return binding.Validator.ValidateStruct(req)
}

func (r analysisRequest) toInput() funnel.Request {
	input := funnel.Request{
		Description:     r.Description,
		CoreService:     r.CoreService,
		TargetAudience:  r.TargetAudience,
		Location:        r.Location,
		CorePhrase:      r.CorePhrase,
		IncludeLocal:    true,
		IncludeNational: true,
		MaxCompetitors:  funnel.DefaultMaxCompetitors,
	}
	if r.IncludeLocal != nil {
		input.IncludeLocal = *r.IncludeLocal
	}
	if r.IncludeNational != nil {
		input.IncludeNational = *r.IncludeNational
	}
	if r.MaxCompetitors != nil {
		input.MaxCompetitors = *r.MaxCompetitors
	}
	return input.Normalize()
}

// validationMessage はバインドエラーをクライアント向けの文言に変換します。
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fieldMessage(fe))
		}
		return strings.Join(msgs, "; ")
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, io.EOF):
		return "request body is required"
	case errors.As(err, &syntaxErr):
		return "request body must be valid JSON"
	case errors.As(err, &typeErr):
		return fmt.Sprintf("%s has an invalid type", typeErr.Field)
	default:
		return "invalid request body"
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
