package controls

import (
	"slices"
	"sort"
	"strings"

	"classroom-backend/internal/apperr"
	"classroom-backend/internal/model"
)

var (
	ErrPaused     = apperr.Forbidden("session is paused")
	ErrSyncLocked = apperr.Forbidden("slides follow the teacher while sync is on")
	ErrNotAllowed = apperr.Forbidden("slide is not open yet")
)

// CanNavigate 학생이 target 슬라이드로 이동할 수 있는지. 불가하면 이유를 담은 에러.
func CanNavigate(s *model.PresentationSession, slideCount, target int) error {
	if !s.Active() {
		return ErrSessionEnded
	}
	if err := checkIndex(target, slideCount); err != nil {
		return err
	}
	if s.IsPaused {
		return ErrPaused
	}
	if s.SyncEnabled {
		if target != s.CurrentSlide {
			return ErrSyncLocked
		}
		return nil
	}
	if s.StudentPacingEnabled && !slices.Contains([]int(s.AllowedSlides), target) {
		return ErrNotAllowed
	}
	return nil
}

// EffectiveSlide 학생 화면에 보일 슬라이드 (동기화 중이면 교사 슬라이드)
func EffectiveSlide(s *model.PresentationSession, p *model.SessionParticipant) int {
	if s.SyncEnabled || p == nil {
		return s.CurrentSlide
	}
	return p.CurrentSlide
}

// SortKey 학생 목록 정렬 기준
type SortKey string

const (
	SortLastName  SortKey = "last_name"
	SortFirstName SortKey = "first_name"
	SortJoinedAt  SortKey = "joined_at"
)

// ParseSortKey 빈 값은 last_name
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return SortLastName, nil
	case SortLastName, SortFirstName, SortJoinedAt:
		return k, nil
	}
	return "", apperr.Invalid("unknown sort key %q", s)
}

// SortStudents 안정 정렬, 동률은 user id 순
func SortStudents(list []model.SessionParticipant, key SortKey) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch key {
		case SortFirstName:
			if c := compareFold(firstName(a), firstName(b)); c != 0 {
				return c < 0
			}
			if c := compareFold(lastName(a), lastName(b)); c != 0 {
				return c < 0
			}
		case SortJoinedAt:
			if !a.JoinedAt.Equal(b.JoinedAt) {
				return a.JoinedAt.Before(b.JoinedAt)
			}
		default:
			if c := compareFold(lastName(a), lastName(b)); c != 0 {
				return c < 0
			}
			if c := compareFold(firstName(a), firstName(b)); c != 0 {
				return c < 0
			}
		}
		return a.UserID < b.UserID
	})
}

func firstName(p model.SessionParticipant) string {
	if p.User == nil {
		return ""
	}
	return p.User.FirstName
}

func lastName(p model.SessionParticipant) string {
	if p.User == nil {
		return ""
	}
	return p.User.LastName
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}
