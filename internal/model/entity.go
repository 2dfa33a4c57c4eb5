package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// JSON 키는 컬럼 이름과 같아야 한다 (변경 이벤트 필터가 컬럼 이름으로 매칭).

// User 사용자
type User struct {
	ID           string       `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string       `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FirstName    string       `gorm:"type:varchar(100);not null;default:''" json:"first_name"`
	LastName     string       `gorm:"type:varchar(100);not null;default:''" json:"last_name"`
	PasswordHash string       `gorm:"type:varchar(255)" json:"-"`
	Provider     AuthProvider `gorm:"type:varchar(50);not null;default:'password'" json:"provider"`
	ProviderID   *string      `gorm:"type:varchar(255)" json:"provider_id,omitempty"`
	CreatedAt    time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// DisplayName 화면 표시용 이름
func (u User) DisplayName() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	case u.LastName != "":
		return u.LastName
	}
	return u.Email
}

// Lesson 레슨 (presentations 테이블)
type Lesson struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	OwnerID   string    `gorm:"type:uuid;not null;index" json:"owner_id"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Slides []Slide `gorm:"foreignKey:PresentationID;constraint:OnDelete:CASCADE" json:"slides,omitempty"`
}

func (Lesson) TableName() string {
	return "presentations"
}

func (l *Lesson) BeforeCreate(*gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// Slide 슬라이드
type Slide struct {
	ID             string                      `gorm:"type:uuid;primaryKey" json:"id"`
	PresentationID string                      `gorm:"type:uuid;not null;uniqueIndex:idx_slide_position,priority:1" json:"presentation_id"`
	Position       int                         `gorm:"not null;uniqueIndex:idx_slide_position,priority:2" json:"position"`
	Title          string                      `gorm:"type:varchar(200);not null;default:''" json:"title"`
	Blocks         datatypes.JSONType[Blocks]  `gorm:"type:jsonb;not null" json:"blocks"`
	Layout         datatypes.JSONType[*Layout] `gorm:"type:jsonb" json:"layout"`
	CreatedAt      time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Slide) TableName() string {
	return "slides"
}

func (s *Slide) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// BlockList 블록 목록
func (s Slide) BlockList() Blocks {
	return s.Blocks.Data()
}

// LayoutDef 배치 정의 (없으면 nil)
func (s Slide) LayoutDef() *Layout {
	return s.Layout.Data()
}

// PresentationSession 발표 세션
type PresentationSession struct {
	ID                   string                   `gorm:"type:uuid;primaryKey" json:"id"`
	JoinCode             string                   `gorm:"type:varchar(16);uniqueIndex;not null" json:"join_code"`
	PresentationID       string                   `gorm:"type:uuid;not null;index" json:"presentation_id"`
	HostID               string                   `gorm:"type:uuid;not null" json:"host_id"`
	StartedAt            time.Time                `gorm:"autoCreateTime" json:"started_at"`
	EndedAt              *time.Time               `json:"ended_at"`
	CurrentSlide         int                      `gorm:"not null;default:0" json:"current_slide"`
	AnonymousMode        bool                     `gorm:"not null;default:false" json:"anonymous_mode"`
	SyncEnabled          bool                     `gorm:"not null;default:true" json:"sync_enabled"`
	StudentPacingEnabled bool                     `gorm:"not null;default:false" json:"student_pacing_enabled"`
	IsPaused             bool                     `gorm:"not null;default:false" json:"is_paused"`
	AllowedSlides        datatypes.JSONSlice[int] `gorm:"type:jsonb" json:"allowed_slides"`
	UpdatedAt            time.Time                `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PresentationSession) TableName() string {
	return "presentation_sessions"
}

func (s *PresentationSession) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Active 종료되지 않은 세션인지
func (s PresentationSession) Active() bool {
	return s.EndedAt == nil
}

// SessionParticipant 세션 참가자
type SessionParticipant struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_session_user,priority:1" json:"session_id"`
	UserID       string    `gorm:"type:uuid;not null;uniqueIndex:idx_participant_session_user,priority:2" json:"user_id"`
	CurrentSlide int       `gorm:"not null;default:0" json:"current_slide"`
	JoinedAt     time.Time `gorm:"autoCreateTime" json:"joined_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`

	// Relations
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}

func (p *SessionParticipant) BeforeCreate(*gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = time.Now()
	}
	return nil
}

// StudentAnswer 학생 응답 (생성 후 불변, 재시도는 새 레코드)
type StudentAnswer struct {
	ID             string      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID      string      `gorm:"type:uuid;not null;index" json:"session_id"`
	StudentID      string      `gorm:"type:uuid;not null;index" json:"student_id"`
	PresentationID string      `gorm:"type:uuid;not null" json:"presentation_id"`
	SlideID        string      `gorm:"type:uuid;not null" json:"slide_id"`
	BlockID        string      `gorm:"type:varchar(100);not null" json:"block_id"`
	Value          AnswerValue `gorm:"type:jsonb;not null" json:"value"`
	IsCorrect      *bool       `json:"is_correct"`
	CreatedAt      time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

func (StudentAnswer) TableName() string {
	return "student_answers"
}

func (a *StudentAnswer) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// UserSettings 사용자별 LLM/TTS 설정
type UserSettings struct {
	UserID       string    `gorm:"type:uuid;primaryKey" json:"user_id"`
	LLMModel     string    `gorm:"type:varchar(100);not null;default:''" json:"llm_model"`
	LLMEndpoint  string    `gorm:"type:varchar(255);not null;default:''" json:"llm_endpoint"`
	OpenAIAPIKey string    `gorm:"column:openai_api_key;type:text;not null;default:''" json:"openai_api_key"`
	HasAPIKey    bool      `gorm:"-" json:"has_api_key"`
	TTSEnabled   bool      `gorm:"column:tts_enabled;not null;default:false" json:"tts_enabled"`
	TTSVoice     string    `gorm:"column:tts_voice;type:varchar(50);not null;default:'alloy'" json:"tts_voice"`
	TTSAutoPlay  bool      `gorm:"column:tts_auto_play;not null;default:false" json:"tts_auto_play"`
	TTSModel     string    `gorm:"column:tts_model;type:varchar(50);not null;default:'tts-1'" json:"tts_model"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserSettings) TableName() string {
	return "user_settings"
}

// DefaultSettings 저장된 행이 없을 때의 기본값
func DefaultSettings(userID string) UserSettings {
	return UserSettings{
		UserID:   userID,
		LLMModel: DefaultLLMModel,
		TTSVoice: DefaultTTSVoice,
		TTSModel: DefaultTTSModel,
	}
}

// MarshalJSON API 키는 마스킹해서 내보낸다
func (s UserSettings) MarshalJSON() ([]byte, error) {
	type alias UserSettings
	a := alias(s)
	a.HasAPIKey = s.OpenAIAPIKey != "" || s.HasAPIKey
	a.OpenAIAPIKey = MaskSecret(s.OpenAIAPIKey)
	return json.Marshal(a)
}

// MaskSecret 앞 3자, 뒤 4자만 남긴다
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:3] + "..." + secret[len(secret)-4:]
}
