package join

import (
	"net/url"
	"strings"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

// CodeFromLink 참가 링크의 code 파라미터 추출.
// 링크가 아니면 입력 자체를 코드로 본다.
func CodeFromLink(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", apperr.Invalid(MsgEmptyCode)
	}
	if !strings.Contains(raw, "?") && !strings.Contains(raw, "://") {
		return model.NormalizeJoinCode(raw), nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperr.Invalid("malformed join link")
	}
	code := model.NormalizeJoinCode(u.Query().Get("code"))
	if code == "" {
		return "", apperr.Invalid("join link has no code")
	}
	return code, nil
}

// Link base URL에 code 파라미터를 붙인 참가 링크
func Link(base, code string) string {
	u, err := url.Parse(base)
	if err != nil || base == "" {
		return "/join?code=" + url.QueryEscape(code)
	}
	q := u.Query()
	q.Set("code", code)
	u.RawQuery = q.Encode()
	return u.String()
}
