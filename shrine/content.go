package shrine

import (
	"encoding/json"
	"fmt"
)

// One typed payload per kind, parsed through ParseContent. A malformed
// payload yields an error for that event only; batch processing skips it
// and keeps going.

type Content interface {
	ContentKind() int
}

type VisitContent struct {
	ShrineName string `json:"shrine_name"`
	Message    string `json:"message"`
	VisitedAt  int64  `json:"visited_at"`
}

func (self *VisitContent) ContentKind() int {
	return KindShrineVisit
}

type OmikujiResult struct {
	Fortune    string `json:"fortune"`
	General    string `json:"general"`
	Love       string `json:"love,omitempty"`
	Money      string `json:"money,omitempty"`
	Health     string `json:"health,omitempty"`
	Work       string `json:"work,omitempty"`
	LuckyItem  string `json:"lucky_item,omitempty"`
	LuckyColor string `json:"lucky_color,omitempty"`
}

func (self *OmikujiResult) ContentKind() int {
	return KindOmikujiData
}

type AdminListContent struct {
	Admins    []string `json:"admins"`
	UpdatedAt int64    `json:"updated_at"`
}

func (self *AdminListContent) ContentKind() int {
	return KindAdminList
}

type SettingsContent struct {
	DailyOmikujiLimit      int      `json:"daily_omikuji_limit,omitempty"`
	OmikujiCooldownMinutes int      `json:"omikuji_cooldown_minutes"`
	Relays                 []string `json:"relays"`
	UpdatedAt              int64    `json:"updated_at,omitempty"`
}

func (self *SettingsContent) ContentKind() int {
	return KindAppSettings
}

type VideoContent struct {
	Url         string `json:"url"`
	Prompt      string `json:"prompt,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func (self *VideoContent) ContentKind() int {
	return KindShrineVideo
}

// ParseContent decodes the content payload for the given kind.
func ParseContent(kind int, content string) (Content, error) {
	var parsed Content
	switch kind {
	case KindShrineVisit:
		parsed = &VisitContent{}
	case KindOmikujiData:
		parsed = &OmikujiResult{}
	case KindAdminList:
		parsed = &AdminListContent{}
	case KindAppSettings:
		parsed = &SettingsContent{}
	case KindShrineVideo:
		parsed = &VideoContent{}
	default:
		return nil, fmt.Errorf("no content schema for kind %d", kind)
	}
	if err := json.Unmarshal([]byte(content), parsed); err != nil {
		return nil, fmt.Errorf("parse kind %d content: %w", kind, err)
	}
	return parsed, nil
}
