package shrine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nostrshrine/shrine/nostr"
)

// Event kinds used by the shrine. The 30xxx kinds are parameterized
// replaceable: (kind, author, d tag) identifies the logical record.
const (
	KindProfile  = 0
	KindTextNote = 1
	KindDeletion = 5

	KindShrineVisit = 3081
	KindAdminList   = 10381
	KindAppSettings = 10394
	KindOmikujiData = 30394
	KindShrineVideo = 30395
)

const (
	DTagAppSettings = "nostrshrine-settings"
	DTagAdminList   = "nostrshrine-admins"
)

const DefaultRelayUrl = "wss://r.kojira.io"

const DefaultShrineName = "NostrShrine"

func signEvent(signer nostr.Signer, builder *nostr.EventBuilder) (*nostr.Event, error) {
	if signer == nil {
		return nil, nostr.ErrNoSigner
	}
	pubkey, err := signer.PublicKey()
	if err != nil {
		return nil, err
	}
	unsigned, err := builder.UnsignedEvent(pubkey)
	if err != nil {
		return nil, err
	}
	return signer.SignEvent(unsigned)
}

func CreateShrineVisitEvent(signer nostr.Signer, visit *VisitContent) (*nostr.Event, error) {
	if visit == nil {
		visit = &VisitContent{}
	}
	if visit.ShrineName == "" {
		visit.ShrineName = DefaultShrineName
	}
	if visit.VisitedAt == 0 {
		visit.VisitedAt = time.Now().UnixMilli()
	}
	content, err := json.Marshal(visit)
	if err != nil {
		return nil, err
	}
	builder := nostr.NewEventBuilder(KindShrineVisit, string(content))
	builder.AddTag("shrine", DefaultShrineName)
	return signEvent(signer, builder)
}

// CreateOmikujiPostEvent shares a drawn fortune as a plain text note.
func CreateOmikujiPostEvent(signer nostr.Signer, result *OmikujiResult) (*nostr.Event, error) {
	content := fmt.Sprintf(
		"🎴 おみくじの結果\n\n運勢: %s\n\n%s\n\n#NostrShrine #おみくじ",
		result.Fortune,
		result.General,
	)
	builder := nostr.NewEventBuilder(KindTextNote, content)
	builder.AddTag("t", DefaultShrineName)
	builder.AddTag("t", "おみくじ")
	builder.AddTag("fortune", result.Fortune)
	return signEvent(signer, builder)
}

// CreateOmikujiDataEvent publishes one fortune datum, keyed by omikujiId.
func CreateOmikujiDataEvent(signer nostr.Signer, omikujiId string, result *OmikujiResult) (*nostr.Event, error) {
	content, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	builder := nostr.NewEventBuilder(KindOmikujiData, string(content))
	builder.AddTag("d", omikujiId)
	builder.AddTag("fortune", result.Fortune)
	return signEvent(signer, builder)
}

func CreateAdminListEvent(signer nostr.Signer, adminPubkeys []string) (*nostr.Event, error) {
	content, err := json.Marshal(&AdminListContent{
		Admins:    adminPubkeys,
		UpdatedAt: time.Now().UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	builder := nostr.NewEventBuilder(KindAdminList, string(content))
	builder.AddTag("d", DTagAdminList)
	for _, admin := range adminPubkeys {
		builder.AddTag("p", admin)
	}
	return signEvent(signer, builder)
}

func CreateAppSettingsEvent(signer nostr.Signer, settings *SettingsContent) (*nostr.Event, error) {
	settings.UpdatedAt = time.Now().UnixMilli()
	content, err := json.Marshal(settings)
	if err != nil {
		return nil, err
	}
	builder := nostr.NewEventBuilder(KindAppSettings, string(content))
	builder.AddTag("d", DTagAppSettings)
	return signEvent(signer, builder)
}

func CreateShrineVideoEvent(signer nostr.Signer, videoId string, video *VideoContent) (*nostr.Event, error) {
	if video.CreatedAt == 0 {
		video.CreatedAt = time.Now().UnixMilli()
	}
	content, err := json.Marshal(video)
	if err != nil {
		return nil, err
	}
	builder := nostr.NewEventBuilder(KindShrineVideo, string(content))
	builder.AddTag("d", videoId)
	if video.Title != "" {
		builder.AddTag("title", video.Title)
	}
	return signEvent(signer, builder)
}

// CreateDeletionEvent requests deletion of the referenced events. The old
// events are not physically removed from the network; consumers purge the
// local cache to force a refetch.
func CreateDeletionEvent(signer nostr.Signer, eventIds []string, reason string) (*nostr.Event, error) {
	builder := nostr.NewEventBuilder(KindDeletion, reason)
	for _, eventId := range eventIds {
		builder.AddTag("e", eventId)
	}
	return signEvent(signer, builder)
}
