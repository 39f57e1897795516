// cmd/tradesim publishes synthetic trades into the inbound trade stream so
// the RSI engine can be run end to end without a live feed.
//
// Each token follows a random walk. Payloads rotate through every accepted
// price field and alternate number and string encodings; a small share is
// deliberately malformed.
//
// Config (env vars):
//
//	BROKER            Redis address (default: "localhost:6379")
//	BROKER_PASSWORD   Redis password
//	TRADE_TOPIC       inbound stream (default: "trade-data")
//	SIM_TOKENS        comma-separated token addresses (default: three sample mints)
//	SIM_RANDOM_TOKENS generate this many random mint addresses instead of SIM_TOKENS
//	SIM_INTERVAL_MS   delay between trades (default: 100)
//	SIM_COUNT         stop after this many trades; 0 runs until interrupted
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"rsi-engine/config"
	"rsi-engine/internal/logger"
	"rsi-engine/internal/payload"
	redisstore "rsi-engine/internal/store/redis"

	"github.com/mr-tron/base58"
)

const defaultTokens = "So11111111111111111111111111111111111111112," +
	"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v," +
	"DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

func main() {
	config.LoadDotenv()
	log := logger.Init("tradesim", logger.ParseLevel(config.GetEnv("LOG_LEVEL", "info")))

	stream := config.GetEnv("TRADE_TOPIC", "trade-data")
	interval := config.GetEnvMillis("SIM_INTERVAL_MS", 100*time.Millisecond)
	count, _ := strconv.Atoi(config.GetEnv("SIM_COUNT", "0"))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	random, _ := strconv.Atoi(config.GetEnv("SIM_RANDOM_TOKENS", "0"))
	tokens := resolveTokens(config.GetEnv("SIM_TOKENS", defaultTokens), random, rng)
	if len(tokens) == 0 {
		log.Error("no tokens to simulate", "SIM_TOKENS", config.GetEnv("SIM_TOKENS", defaultTokens))
		os.Exit(1)
	}
	for _, t := range tokens {
		if !isMint(t) {
			log.Warn("token is not a 32-byte base58 address, using it anyway", "token", t)
		}
	}

	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:     config.GetEnv("BROKER", "localhost:6379"),
		Password: config.GetEnv("BROKER_PASSWORD", ""),
		Stream:   stream,
	}, log)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	prices := make(map[string]float64, len(tokens))
	for _, t := range tokens {
		prices[t] = 0.5 + rng.Float64()
	}

	log.Info("publishing trades", "stream", stream, "tokens", len(tokens), "interval", interval.String(), "count", count)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for sent := 0; count == 0 || sent < count; sent++ {
		select {
		case <-ctx.Done():
			log.Info("stopped", "sent", sent)
			return
		case <-ticker.C:
		}

		token := tokens[sent%len(tokens)]
		p := prices[token] * math.Exp(rng.NormFloat64()*0.01)
		prices[token] = p

		body := tradePayload(sent, token, p)
		if _, err := w.Publish(ctx, token, []byte(body)); err != nil {
			log.Error("publish failed", "error", err)
		}
	}
	log.Info("done", "sent", count)
}

// resolveTokens returns random mint addresses when random > 0, otherwise the
// non-blank entries of the comma-separated list.
func resolveTokens(list string, random int, rng *rand.Rand) []string {
	var tokens []string
	if random > 0 {
		for i := 0; i < random; i++ {
			tokens = append(tokens, randomMint(rng))
		}
		return tokens
	}
	for _, t := range strings.Split(list, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// tradePayload rotates through the accepted price fields and encodings.
// Every 50th payload has no usable price.
func tradePayload(n int, token string, price float64) string {
	if n%50 == 49 {
		return fmt.Sprintf(`{"%s":%q,"price":"n/a"}`, payload.TokenField, token)
	}
	field := payload.PriceFields[n%len(payload.PriceFields)]
	value := strconv.FormatFloat(price, 'f', 9, 64)
	if n%2 == 1 {
		value = strconv.Quote(value)
	}
	return fmt.Sprintf(`{"%s":%q,"%s":%s,"slot":%d}`, payload.TokenField, token, field, value, 250000000+n)
}

// randomMint returns a random Solana-style address: 32 bytes, base58.
func randomMint(rng *rand.Rand) string {
	var b [32]byte
	rng.Read(b[:])
	return base58.Encode(b[:])
}

func isMint(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == 32
}
