package httpadapter

import (
	"net/http"
	"strings"
	"time"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/contract-orchestrator/internal/core/domain"
)

func contractIDParam(r *http.Request) (string, error) {
	var contractID string
	err := runtime.BindStyledParameterWithOptions("simple", "contract_id", r.PathValue("contract_id"), &contractID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind contract_id", err)
	}
	return contractID, nil
}

func languageParam(r *http.Request) (domain.TranslationLanguage, error) {
	var raw string
	err := runtime.BindStyledParameterWithOptions("simple", "language", r.PathValue("language"), &raw,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "bind language", err)
	}
	language := domain.TranslationLanguage(strings.ToLower(raw))
	if !language.Valid() {
		return "", domain.NewError(domain.ErrInvalidInput, "bind language", "unsupported language "+raw)
	}
	return language, nil
}

type listParams struct {
	Search *string
	Limit  *int
	Offset *int
}

func bindListParams(r *http.Request) (listParams, error) {
	var params listParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "search", query, &params.Search); err != nil {
		return params, domain.WrapError(domain.ErrInvalidInput, "bind search", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &params.Limit); err != nil {
		return params, domain.WrapError(domain.ErrInvalidInput, "bind limit", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &params.Offset); err != nil {
		return params, domain.WrapError(domain.ErrInvalidInput, "bind offset", err)
	}
	return params, nil
}

func (p listParams) filter() domain.ListFilter {
	var filter domain.ListFilter
	if p.Search != nil {
		filter.Search = *p.Search
	}
	if p.Limit != nil {
		filter.Limit = *p.Limit
	}
	if p.Offset != nil {
		filter.Offset = *p.Offset
	}
	return filter
}

func bindDaysParam(r *http.Request) (int, error) {
	var days *int
	if err := runtime.BindQueryParameter("form", true, false, "days", r.URL.Query(), &days); err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "bind days", err)
	}
	if days == nil {
		return 0, nil
	}
	return *days, nil
}

// parseExpiryDate accepts a calendar date or a full RFC 3339 timestamp.
func parseExpiryDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, domain.NewError(domain.ErrInvalidInput, "parse expiry_date", "expected YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}
