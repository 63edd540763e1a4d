package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"maritime-tutor/internal/auth"
	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/config"
	"maritime-tutor/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"net/http/httptest"
)

func TestWSChatHandler_MissingPrompt(t *testing.T) {
	// setupUserDB(t) should migrate ALL models, including user, chat, and message.
	setupUserDB(t)                     // defined in setup_handler_test.go
	resetUserTable(t)                  // defined in setup_handler_test.go
	u := seedUser(t, "wsuser", "user") // defined in user_crud_handlers_test.go

	// Ensure chat.Chat table exists!
	c := chat.Chat{UserID: u.ID, ModelName: "test-model", CreatedAt: time.Now()}
	if err := db.DB.Create(&c).Error; err != nil {
		t.Fatalf("failed to seed chat: %v", err)
	}

	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Server.JWTSecret = "test-secret"

	token, err := auth.GenerateJWT(cfg.Server.JWTSecret, u.ID, u.Username, string(u.Role), time.Hour)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	r := gin.New()
	// No orchestrator is wired since the missing-prompt check short-circuits
	// before HandleTurn would ever be reached.
	r.GET("/ws/chat", WSChatHandler(cfg, nil))

	s := httptest.NewServer(r)
	defer s.Close()

	wsURL := "ws" + s.URL[4:] + "/ws/chat"
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	defer ws.Close()

	payload := WSChatPrompt{ChatID: c.ID, Prompt: ""}
	b, _ := json.Marshal(payload)
	if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("WebSocket write failed: %v", err)
	}
	_, resp, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	if !bytes.Contains(resp, []byte("missing prompt")) {
		t.Errorf("expected missing prompt error, got: %s", string(resp))
	}
}
