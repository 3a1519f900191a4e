package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // ⚠️ Start small (50 pairs = 100 users). Database might choke on 1000 immediately.
	MsgCount  = 20 // Messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int    `json:"id"`
	Username string `json:"username"`
}

type ConversationResponse struct {
	ID int `json:"id"`
}

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d Users, %d Messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	// We create pairs: User 0a talks to User 0b, 1a to 1b...
	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123"

	tokenA, _ := authenticate(userA, pass)
	tokenB, idB := authenticate(userB, pass)

	if tokenA == "" || tokenB == "" {
		return // Failed auth
	}

	// User A opens the conversation with User B over REST.
	convID := createConversation(tokenA, idB)
	if convID == 0 {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChat(&wsWg, tokenA, convID, userA)
	go spamChat(&wsWg, tokenB, convID, userB)

	wsWg.Wait()
}

// authenticate registers (ignores error if exists) and logs in.
func authenticate(username, password string) (string, int) {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login Failed [%s]: %v", username, err)
		return "", 0
	}
	defer resp.Body.Close()

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token, data.ID
}

func createConversation(token string, targetID int) int {
	body, _ := json.Marshal(map[string]int{"otherUserId": targetID})
	req, _ := http.NewRequest("POST", BaseURL+"/api/conversations", bytes.NewBuffer(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != 200 {
		log.Printf("❌ Create Chat Failed: %v", err)
		return 0
	}
	defer resp.Body.Close()

	var data ConversationResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

func spamChat(wg *sync.WaitGroup, token string, convID int, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain echoes and the counterpart's messages so the server never sees
	// us as a slow consumer.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		data, _ := json.Marshal(map[string]string{
			"roomId":  strconv.Itoa(convID),
			"content": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
			"type":    "text",
		})
		if err := conn.WriteJSON(Envelope{Event: "chat_message", Data: data}); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give in-flight fan-out a moment before tearing the socket down.
	time.Sleep(200 * time.Millisecond)
	conn.Close()
	<-done
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
