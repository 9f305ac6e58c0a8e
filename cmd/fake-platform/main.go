// fake-platform posts synthetic signed Instagram webhook deliveries at a
// running PulseHook API. It is a development tool for exercising the receive
// and processing pipeline without a real platform subscription.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pulsehook/pulsehook/internal/webhook"
)

var (
	targetURL   = "http://localhost:8080/webhooks/instagram"
	appSecret   = "dev-secret"
	platformID  = "17841400000000001"
	interval    = 2 * time.Second
	count       = 0 // 0 means run until interrupted
	kinds       = []string{"comments", "mentions", "messages", "likes"}
	badSigEvery = 0 // every Nth delivery gets a garbage signature
)

func main() {
	if v := os.Getenv("TARGET_URL"); v != "" {
		targetURL = v
	}
	if v := os.Getenv("APP_SECRET"); v != "" {
		appSecret = v
	}
	if v := os.Getenv("PLATFORM_USER_ID"); v != "" {
		platformID = v
	}
	if v := os.Getenv("SEND_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		}
	}
	if v := os.Getenv("SEND_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	if v := os.Getenv("FIELDS"); v != "" {
		kinds = strings.Split(v, ",")
	}
	if v := os.Getenv("BAD_SIG_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			badSigEvery = n
		}
	}

	log.Printf("fake-platform sending to %s every %s (fields: %s)", targetURL, interval, strings.Join(kinds, ","))

	sent := 0
	for {
		sent++
		field := kinds[rand.Intn(len(kinds))]
		body, err := buildDelivery(field)
		if err != nil {
			log.Fatalf("build delivery: %v", err)
		}
		send(body, sent)

		if count > 0 && sent >= count {
			log.Printf("fake-platform done after %d deliveries", sent)
			return
		}
		time.Sleep(interval)
	}
}

// buildDelivery assembles a one-entry payload with a single change of the
// given field, shaped like the platform's real notifications.
func buildDelivery(field string) ([]byte, error) {
	var value interface{}
	switch field {
	case "comments":
		value = map[string]interface{}{
			"id":    fmt.Sprintf("cmt_%d", rand.Intn(1_000_000)),
			"text":  randomText(),
			"media": map[string]string{"id": fmt.Sprintf("media_%d", rand.Intn(10_000))},
			"from": map[string]string{
				"id":       fmt.Sprintf("user_%d", rand.Intn(10_000)),
				"username": "fan_account",
			},
		}
	case "mentions":
		value = map[string]interface{}{
			"comment_id": fmt.Sprintf("cmt_%d", rand.Intn(1_000_000)),
			"media_id":   fmt.Sprintf("media_%d", rand.Intn(10_000)),
			"text":       "@brand " + randomText(),
			"from":       map[string]string{"username": "mentioner"},
		}
	case "messages":
		value = map[string]interface{}{
			"sender": map[string]string{"id": fmt.Sprintf("user_%d", rand.Intn(10_000))},
			"message": map[string]string{
				"mid":  fmt.Sprintf("mid_%d", rand.Intn(1_000_000)),
				"text": randomText(),
			},
		}
	case "likes":
		value = map[string]interface{}{
			"media_id":      fmt.Sprintf("media_%d", rand.Intn(10_000)),
			"like_count":    rand.Intn(15_000),
			"comment_count": rand.Intn(2_000),
		}
	case "errors":
		value = map[string]interface{}{
			"message": "token has expired",
			"code":    190,
		}
	default:
		value = map[string]interface{}{"raw": "synthetic " + field}
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	p := webhook.Payload{
		Object: "instagram",
		Entry: []webhook.Entry{{
			ID:      platformID,
			Time:    time.Now().Unix(),
			Changes: []webhook.Change{{Field: field, Value: raw}},
		}},
	}
	return json.Marshal(p)
}

func send(body []byte, n int) {
	req, err := http.NewRequest("POST", targetURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("request build failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	sig := webhook.SignHex(appSecret, body)
	if badSigEvery > 0 && n%badSigEvery == 0 {
		sig = "sha256=deadbeef"
		log.Printf("sending delivery %d with an invalid signature", n)
	}
	req.Header.Set("X-Hub-Signature-256", sig)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("send failed: %v", err)
		return
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	log.Printf("delivery %d -> %d %s", n, resp.StatusCode, strings.TrimSpace(string(respBody)))
}

var phrases = []string{
	"love this so much",
	"amazing work as always",
	"this is terrible, very disappointed",
	"when is the next drop?",
	"great quality, fast shipping",
	"worst purchase ever",
	"ok I guess",
}

func randomText() string {
	return phrases[rand.Intn(len(phrases))]
}
