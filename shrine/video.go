package shrine

import (
	"context"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/nostrshrine/shrine/nostr"
)

// VideoRecord is one shrine video, keyed by the event's d tag.
type VideoRecord struct {
	Id      string
	VideoId string
	Event   *nostr.Event
	Data    *VideoContent
}

// Videos manages the admin-published video set.
type Videos struct {
	client       *nostr.CachedClient
	fetchTimeout time.Duration
}

func NewVideos(client *nostr.CachedClient) *Videos {
	return &Videos{
		client:       client,
		fetchTimeout: nostr.DefaultFetchTimeout,
	}
}

// List returns the current video records. For each d tag only the latest
// event counts; malformed payloads are logged and excluded.
func (self *Videos) List(ctx context.Context) ([]*VideoRecord, error) {
	filters := []*nostr.Filter{
		{
			Kinds: []int{KindShrineVideo},
		},
	}
	events := fetchMerged(ctx, self.client, filters, self.fetchTimeout)

	latestByVideoId := map[string]*nostr.Event{}
	for _, event := range events {
		videoId := event.DTag()
		if videoId == "" {
			continue
		}
		if latest, ok := latestByVideoId[videoId]; !ok || latest.CreatedAt < event.CreatedAt {
			latestByVideoId[videoId] = event
		}
	}

	records := []*VideoRecord{}
	for videoId, event := range latestByVideoId {
		content, err := ParseContent(KindShrineVideo, event.Content)
		if err != nil {
			glog.Infof("[video]skip event %s = %s\n", event.Id, err)
			continue
		}
		records = append(records, &VideoRecord{
			Id:      event.Id,
			VideoId: videoId,
			Event:   event,
			Data:    content.(*VideoContent),
		})
	}
	return records, nil
}

// Publish registers a hosted video url as a new video record.
func (self *Videos) Publish(signer nostr.Signer, video *VideoContent) (*VideoRecord, error) {
	videoId := strings.ToLower(ulid.Make().String())
	event, err := CreateShrineVideoEvent(signer, videoId, video)
	if err != nil {
		return nil, err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return nil, err
	}
	if err := self.client.Store().Put(event); err != nil {
		glog.Infof("[video]cache write error = %s\n", err)
	}
	return &VideoRecord{
		Id:      event.Id,
		VideoId: videoId,
		Event:   event,
		Data:    video,
	}, nil
}

// Delete publishes a deletion request for the record, then purges the
// video kind from the local cache so the next query refetches from the
// network instead of serving the stale entry.
func (self *Videos) Delete(signer nostr.Signer, record *VideoRecord) error {
	event, err := CreateDeletionEvent(signer, []string{record.Id}, "video removed")
	if err != nil {
		return err
	}
	if err := self.client.Pool().PublishToAll(event); err != nil {
		return err
	}
	if err := self.client.Store().PurgeByKind(KindShrineVideo); err != nil {
		glog.Infof("[video]purge error = %s\n", err)
	}
	return nil
}
