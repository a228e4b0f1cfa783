package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"RoundLedger/internal/observability"
	"RoundLedger/internal/oracle"
	"RoundLedger/internal/state"
)

// pricefeed relays oracle price updates from a Hermes-style websocket into
// Redis, where the settlement engine reads them. It reconnects forever with
// exponential backoff; the Redis TTL bounds how long a stale price survives
// a dead relay.

type Config struct {
	WSURL         string
	Feeds         []state.FeedID
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	PriceTTL      time.Duration
}

func loadConfig(log zerolog.Logger) Config {
	raw := os.Getenv("ROUND_PRICEFEED_FEEDS")
	if raw == "" {
		log.Fatal().Msg("ROUND_PRICEFEED_FEEDS is required (comma-separated feed ids)")
	}

	var feeds []state.FeedID
	for _, s := range strings.Split(raw, ",") {
		feed, err := state.ParseFeedID(strings.TrimSpace(s))
		if err != nil {
			log.Fatal().Err(err).Str("feed", s).Msg("parse feed id")
		}
		feeds = append(feeds, feed)
	}

	ttl := 5 * time.Minute
	if v := os.Getenv("ROUND_PRICE_TTL_SECS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal().Err(err).Msg("parse ROUND_PRICE_TTL_SECS")
		}
		ttl = time.Duration(secs) * time.Second
	}

	redisDB := 0
	if v := os.Getenv("ROUND_REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			log.Fatal().Err(err).Msg("parse ROUND_REDIS_DB")
		}
		redisDB = db
	}

	wsURL := os.Getenv("ROUND_PRICEFEED_WS_URL")
	if wsURL == "" {
		wsURL = "wss://hermes.pyth.network/ws"
	}

	redisAddr := os.Getenv("ROUND_REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return Config{
		WSURL:         wsURL,
		Feeds:         feeds,
		RedisAddr:     redisAddr,
		RedisPassword: os.Getenv("ROUND_REDIS_PASSWORD"),
		RedisDB:       redisDB,
		PriceTTL:      ttl,
	}
}

func main() {
	godotenv.Load()

	log := observability.NewLogger("pricefeed")
	cfg := loadConfig(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	rdb, err := oracle.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}
	defer rdb.Close()

	writer := oracle.NewRedisWriter(rdb, cfg.PriceTTL)
	relay := &Relay{
		wsURL:  cfg.WSURL,
		feeds:  cfg.Feeds,
		writer: writer,
		log:    log,
	}

	log.Info().Str("ws", cfg.WSURL).Int("feeds", len(cfg.Feeds)).Msg("pricefeed starting")
	relay.Run(ctx)
	log.Info().Msg("pricefeed stopped")
}

// Relay maintains one websocket subscription and writes every price update
// to Redis.
type Relay struct {
	wsURL  string
	feeds  []state.FeedID
	writer *oracle.RedisWriter
	log    zerolog.Logger
}

// Run reconnects until ctx is cancelled. Backoff doubles from 1s to 30s and
// resets after a healthy session.
func (r *Relay) Run(ctx context.Context) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		err := r.session(ctx)
		if ctx.Err() != nil {
			return
		}
		r.log.Warn().Err(err).Dur("backoff", backoff).Msg("websocket session ended, reconnecting")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		if time.Since(start) > time.Minute {
			backoff = time.Second
		} else if backoff < maxBackoff {
			backoff *= 2
		}
	}
}

type subscribeMsg struct {
	Type string   `json:"type"`
	IDs  []string `json:"ids"`
}

type wsMessage struct {
	Type      string `json:"type"`
	PriceFeed *struct {
		ID    string `json:"id"`
		Price struct {
			Price       string `json:"price"`
			Expo        int32  `json:"expo"`
			PublishTime int64  `json:"publish_time"`
		} `json:"price"`
	} `json:"price_feed"`
}

// session dials, subscribes, and pumps updates until the connection breaks.
func (r *Relay) session(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", r.wsURL, err)
	}
	defer conn.Close()

	// Unblock ReadMessage when ctx is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	ids := make([]string, len(r.feeds))
	for i, f := range r.feeds {
		ids[i] = f.String()
	}
	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", IDs: ids}); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	r.log.Info().Int("feeds", len(ids)).Msg("subscribed")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if err := r.handle(ctx, data); err != nil {
			r.log.Warn().Err(err).Msg("handle update")
		}
	}
}

func (r *Relay) handle(ctx context.Context, data []byte) error {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if msg.Type != "price_update" || msg.PriceFeed == nil {
		return nil
	}

	feed, err := state.ParseFeedID(msg.PriceFeed.ID)
	if err != nil {
		return fmt.Errorf("parse feed id: %w", err)
	}

	price, err := strconv.ParseInt(msg.PriceFeed.Price.Price, 10, 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", msg.PriceFeed.Price.Price, err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return r.writer.WritePrice(writeCtx, feed, oracle.Price{
		Price:       price,
		Exponent:    msg.PriceFeed.Price.Expo,
		PublishTime: msg.PriceFeed.Price.PublishTime,
	})
}
