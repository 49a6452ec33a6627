package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/docopt/docopt-go"
	"golang.org/x/term"

	"github.com/nostrshrine/shrine/nostr"
	"github.com/nostrshrine/shrine/shrine"
)

const ShrineCtlVersion = "0.1.0"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(
		`Nostr shrine control.

The default relay is %s. The secret key is read from the
SHRINE_SECRET_KEY environment variable (hex or nsec) or prompted.

Usage:
    shrinectl keygen
    shrinectl visit [--relay=<url>...] [--db=<path>]
        [--name=<shrine_name>] [--message=<message>]
    shrinectl draw [--relay=<url>...] [--db=<path>] [--post]
    shrinectl feed [--relay=<url>...] [--db=<path>] [--until=<timestamp>]
    shrinectl settings [--relay=<url>...] [--db=<path>]
    shrinectl admins [--relay=<url>...] [--db=<path>] [--fallback=<pubkeys>]
    shrinectl publish-omikuji --file=<file> [--relay=<url>...] [--db=<path>]
    shrinectl videos [--relay=<url>...] [--db=<path>]
    shrinectl publish-video --url=<video_url> [--title=<title>]
        [--relay=<url>...] [--db=<path>]
    shrinectl delete-video <video_id> [--relay=<url>...] [--db=<path>]
    shrinectl profile <pubkey> [--relay=<url>...] [--db=<path>]
    shrinectl status [--relay=<url>...] [--db=<path>]

Options:
    -h --help                Show this screen.
    --version                Show version.
    --relay=<url>            Relay url. Repeatable.
    --db=<path>              Local store path [default: shrine.db].
    --name=<shrine_name>     Shrine name for the visit.
    --message=<message>      Visit message.
    --post                   Share the drawn fortune as a text note.
    --until=<timestamp>      Page the feed before this unix timestamp.
    --fallback=<pubkeys>     Comma separated fallback admin keys.
    --file=<file>            JSON file with a list of omikuji results.
    --url=<video_url>        Hosted video url to register.
    --title=<title>          Video title.`,
		shrine.DefaultRelayUrl,
	)

	opts, _ := docopt.ParseArgs(usage, os.Args[1:], ShrineCtlVersion)

	if keygen, _ := opts.Bool("keygen"); keygen {
		runKeygen()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session, err := openSession(ctx, opts)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	defer session.close()

	switch {
	case command(opts, "visit"):
		runVisit(ctx, session, opts)
	case command(opts, "draw"):
		runDraw(ctx, session, opts)
	case command(opts, "feed"):
		runFeed(ctx, session, opts)
	case command(opts, "settings"):
		runSettings(ctx, session)
	case command(opts, "admins"):
		runAdmins(ctx, session, opts)
	case command(opts, "publish-omikuji"):
		runPublishOmikuji(ctx, session, opts)
	case command(opts, "videos"):
		runVideos(ctx, session)
	case command(opts, "publish-video"):
		runPublishVideo(session, opts)
	case command(opts, "delete-video"):
		runDeleteVideo(ctx, session, opts)
	case command(opts, "profile"):
		runProfile(ctx, session, opts)
	case command(opts, "status"):
		runStatus(session)
	}
}

func command(opts docopt.Opts, name string) bool {
	active, _ := opts.Bool(name)
	return active
}

type session struct {
	db       *sql.DB
	pool     *nostr.Pool
	client   *nostr.CachedClient
	profiles *nostr.ProfileStore
}

func (self *session) close() {
	self.pool.DisconnectAll()
	self.db.Close()
}

func openSession(ctx context.Context, opts docopt.Opts) (*session, error) {
	dbPath, _ := opts.String("--db")
	if dbPath == "" {
		dbPath = "shrine.db"
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		os.MkdirAll(dir, 0o700)
	}
	db, err := nostr.OpenDb(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	relayUrls := []string{}
	if urls, ok := opts["--relay"].([]string); ok {
		relayUrls = urls
	}
	if len(relayUrls) == 0 {
		relayUrls = []string{shrine.DefaultRelayUrl}
	}

	pool := nostr.NewPoolWithDefaults(ctx)
	for _, url := range relayUrls {
		pool.AddRelay(url)
	}
	pool.ConnectAll()
	if !pool.AnyConnected() {
		Err.Printf("no relay connected; serving from local cache only")
	}

	store := nostr.NewEventStore(db)
	return &session{
		db:       db,
		pool:     pool,
		client:   nostr.NewCachedClient(ctx, pool, store),
		profiles: nostr.NewProfileStore(db),
	}, nil
}

func requireSigner() nostr.Signer {
	secretKey := os.Getenv("SHRINE_SECRET_KEY")
	if secretKey == "" {
		fmt.Fprint(os.Stderr, "secret key (hex or nsec): ")
		entered, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			Err.Fatalf("read secret key: %s", err)
		}
		secretKey = string(entered)
	}
	signer, err := nostr.NewLocalSigner(secretKey)
	if err != nil {
		Err.Fatalf("%s", err)
	}
	return signer
}

func runKeygen() {
	signer, err := nostr.GenerateLocalSigner()
	if err != nil {
		Err.Fatalf("%s", err)
	}
	pubkey, _ := signer.PublicKey()
	npub, _ := nostr.EncodeNpub(pubkey)
	nsec, _ := nostr.EncodeNsec(signer.SecretKey())
	Out.Printf("pubkey: %s", pubkey)
	Out.Printf("npub:   %s", npub)
	Out.Printf("nsec:   %s", nsec)
}

func runVisit(ctx context.Context, session *session, opts docopt.Opts) {
	signer := requireSigner()
	shrineName, _ := opts.String("--name")
	message, _ := opts.String("--message")

	history := shrine.NewHistoryWithDefaults(session.client, session.profiles)
	event, err := history.Publish(signer, &shrine.VisitContent{
		ShrineName: shrineName,
		Message:    message,
	})
	if err != nil {
		Err.Fatalf("visit: %s", err)
	}
	Out.Printf("visited (%s)", event.Id)
}

func runDraw(ctx context.Context, session *session, opts docopt.Opts) {
	omikuji := shrine.NewOmikujiWithDefaults(session.client)
	result, err := omikuji.Draw(ctx)
	if err != nil {
		Err.Fatalf("draw: %s", err)
	}
	Out.Printf("運勢: %s", result.Fortune)
	Out.Printf("%s", result.General)
	if result.LuckyItem != "" {
		Out.Printf("lucky item: %s", result.LuckyItem)
	}
	if result.LuckyColor != "" {
		Out.Printf("lucky color: %s", result.LuckyColor)
	}

	if post, _ := opts.Bool("--post"); post {
		signer := requireSigner()
		event, err := omikuji.PublishResult(signer, result)
		if err != nil {
			Err.Fatalf("post: %s", err)
		}
		Out.Printf("posted (%s)", event.Id)
	}
}

func runFeed(ctx context.Context, session *session, opts docopt.Opts) {
	var until int64
	if value, err := opts.Int("--until"); err == nil {
		until = int64(value)
	}

	history := shrine.NewHistoryWithDefaults(session.client, session.profiles)
	records, err := history.Fetch(ctx, until)
	if err != nil {
		Err.Fatalf("feed: %s", err)
	}
	for _, record := range records {
		name := record.Pubkey[:8]
		if record.Profile != nil && record.Profile.Name != "" {
			name = record.Profile.Name
		}
		Out.Printf(
			"%s  %s  %s  %s",
			time.Unix(record.Timestamp, 0).Format(time.DateTime),
			name,
			record.ShrineName,
			record.Message,
		)
	}
	if len(records) == 0 {
		Out.Printf("no visits")
	}
}

func runSettings(ctx context.Context, session *session) {
	settings := shrine.NewSettings(session.client).Fetch(ctx)
	Out.Printf("cooldown: %d minutes", settings.OmikujiCooldownMinutes)
	Out.Printf("relays:   %s", strings.Join(settings.Relays, ", "))
}

func runAdmins(ctx context.Context, session *session, opts docopt.Opts) {
	fallback := []string{}
	if value, err := opts.String("--fallback"); err == nil && value != "" {
		for _, pubkey := range strings.Split(value, ",") {
			fallback = append(fallback, strings.TrimSpace(pubkey))
		}
	}

	admins, err := shrine.NewAdmins(session.pool, fallback).Resolve(ctx)
	if err != nil {
		Err.Fatalf("admins: %s", err)
	}
	for _, admin := range admins {
		Out.Printf("%s", admin)
	}
	if len(admins) == 0 {
		Out.Printf("no admins configured")
	}
}

func runPublishOmikuji(ctx context.Context, session *session, opts docopt.Opts) {
	file, _ := opts.String("--file")
	data, err := os.ReadFile(file)
	if err != nil {
		Err.Fatalf("read %s: %s", file, err)
	}
	results := []*shrine.OmikujiResult{}
	if err := json.Unmarshal(data, &results); err != nil {
		Err.Fatalf("parse %s: %s", file, err)
	}

	signer := requireSigner()
	omikuji := shrine.NewOmikujiWithDefaults(session.client)
	for i, result := range results {
		omikujiId := fmt.Sprintf("omikuji-%d-%d", time.Now().Unix(), i)
		event, err := omikuji.PublishData(signer, omikujiId, result)
		if err != nil {
			Err.Fatalf("publish %s: %s", omikujiId, err)
		}
		Out.Printf("published %s (%s)", omikujiId, event.Id)
	}
}

func runVideos(ctx context.Context, session *session) {
	records, err := shrine.NewVideos(session.client).List(ctx)
	if err != nil {
		Err.Fatalf("videos: %s", err)
	}
	for _, record := range records {
		Out.Printf("%s  %s  %s", record.VideoId, record.Data.Title, record.Data.Url)
	}
	if len(records) == 0 {
		Out.Printf("no videos")
	}
}

func runPublishVideo(session *session, opts docopt.Opts) {
	url, _ := opts.String("--url")
	title, _ := opts.String("--title")

	signer := requireSigner()
	record, err := shrine.NewVideos(session.client).Publish(signer, &shrine.VideoContent{
		Url:   url,
		Title: title,
	})
	if err != nil {
		Err.Fatalf("publish video: %s", err)
	}
	Out.Printf("published %s (%s)", record.VideoId, record.Id)
}

func runDeleteVideo(ctx context.Context, session *session, opts docopt.Opts) {
	videoId, _ := opts.String("<video_id>")

	videos := shrine.NewVideos(session.client)
	records, err := videos.List(ctx)
	if err != nil {
		Err.Fatalf("videos: %s", err)
	}
	for _, record := range records {
		if record.VideoId == videoId {
			signer := requireSigner()
			if err := videos.Delete(signer, record); err != nil {
				Err.Fatalf("delete video: %s", err)
			}
			Out.Printf("deleted %s", videoId)
			return
		}
	}
	Err.Fatalf("no video %s", videoId)
}

func runProfile(ctx context.Context, session *session, opts docopt.Opts) {
	pubkey, _ := opts.String("<pubkey>")
	if strings.HasPrefix(pubkey, "npub1") {
		decoded, err := nostr.DecodeNpub(pubkey)
		if err != nil {
			Err.Fatalf("decode npub: %s", err)
		}
		pubkey = decoded
	}

	events := fetchProfileEvents(ctx, session, pubkey)
	for _, event := range events {
		if err := session.profiles.Upsert(event); err != nil {
			Err.Printf("profile store: %s", err)
		}
	}

	cached, err := session.profiles.Get(pubkey)
	if err != nil {
		Err.Fatalf("profile: %s", err)
	}
	if cached == nil {
		Out.Printf("no profile for %s", pubkey)
		return
	}
	Out.Printf("name:    %s", cached.Profile.Name)
	if cached.Profile.DisplayName != "" {
		Out.Printf("display: %s", cached.Profile.DisplayName)
	}
	if cached.Profile.About != "" {
		Out.Printf("about:   %s", cached.Profile.About)
	}
	if cached.Profile.Nip05 != "" {
		Out.Printf("nip05:   %s", cached.Profile.Nip05)
	}
}

func fetchProfileEvents(ctx context.Context, session *session, pubkey string) []*nostr.Event {
	done := make(chan []*nostr.Event, 1)
	events := session.client.Fetch(
		ctx,
		[]*nostr.Filter{
			{
				Kinds:   []int{shrine.KindProfile},
				Authors: []string{pubkey},
			},
		},
		&nostr.FetchOptions{
			OnNetwork: func(newEvents []*nostr.Event) {
				done <- newEvents
			},
		},
	)
	select {
	case newEvents := <-done:
		events = append(events, newEvents...)
	case <-time.After(nostr.DefaultFetchTimeout + 500*time.Millisecond):
	case <-ctx.Done():
	}
	return events
}

func runStatus(session *session) {
	for _, relay := range session.pool.Relays() {
		Out.Printf("%s  %s", relay.Url(), relay.Status())
	}
}
