// internal/api/ws_chat_handler.go
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"maritime-tutor/internal/auth"
	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/chatturn"
	"maritime-tutor/internal/config"
	"maritime-tutor/internal/crag"
	"maritime-tutor/internal/db"
)

// WSChatPrompt is the WebSocket message format a client sends to start a turn.
type WSChatPrompt struct {
	ChatID uint   `json:"chatId"`
	Prompt string `json:"prompt"`
}

// WSChatToken is one streamed token, kept for the UI's token-by-token
// rendering even though the orchestrator itself answers in one shot.
type WSChatToken struct {
	Token string `json:"token"`
	Index int    `json:"index"`
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeWSConn serializes writes to one WebSocket connection.
type safeWSConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeWSConn) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *safeWSConn) ReadMessage() (int, []byte, error) {
	return s.conn.ReadMessage()
}

func (s *safeWSConn) Close() error {
	return s.conn.Close()
}

// WSChatHandler is the WebSocket entry point for a chat turn: it
// authenticates, reads one prompt, runs it through the chat orchestrator,
// and streams the answer back as a sequence of whitespace-delimited
// tokens so the existing streaming UI keeps working unchanged.
func WSChatHandler(cfg *config.Config, turns *chatturn.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing JWT"})
			return
		}
		token = strings.TrimPrefix(token, "Bearer ")
		claims, err := auth.ParseJWT(cfg.Server.JWTSecret, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid JWT"})
			return
		}
		c.Set("userId", claims.UserID)

		rawConn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Println("WebSocket upgrade failed:", err)
			return
		}
		conn := &safeWSConn{conn: rawConn}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "invalid initial payload"})
			return
		}
		var req WSChatPrompt
		if err := json.Unmarshal(msg, &req); err != nil {
			conn.WriteJSON(map[string]string{"error": "invalid JSON"})
			return
		}
		if req.Prompt == "" {
			conn.WriteJSON(map[string]string{"error": "missing prompt"})
			return
		}

		userID, ok := getUserIDFromContext(c)
		if !ok {
			conn.WriteJSON(map[string]string{"error": "unauthorized"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", req.ChatID, userID).First(&chatInst).Error; err != nil {
			conn.WriteJSON(map[string]string{"error": "chat not found"})
			return
		}

		userIDStr := strconv.FormatUint(uint64(userID), 10)
		out, err := turns.HandleTurn(c.Request.Context(), chatturn.Input{
			UserID:    userIDStr,
			ChatID:    chatInst.ID,
			SessionID: userIDStr + "-" + strconv.FormatUint(uint64(chatInst.ID), 10),
			Message:   req.Prompt,
			Role:      crag.RoleStudent,
		})
		if err != nil {
			conn.WriteJSON(map[string]string{"error": "turn failed"})
			return
		}

		streamTokens(conn, out.Message)
		conn.WriteJSON(map[string]interface{}{
			"event":               "end",
			"sources":             out.Sources,
			"suggested_questions": out.SuggestedQuestions,
			"reasoning_trace":     out.ReasoningTrace,
			"warning":             out.Warning,
		})
	}
}

// streamTokens sends the answer to the client word-by-word, matching
// the shape the teacher's real-streaming handler used, now over an
// already-complete answer (the CRAG orchestrator doesn't itself stream
// token-by-token).
func streamTokens(conn *safeWSConn, answer string) {
	words := strings.Fields(answer)
	for i, w := range words {
		token := w
		if i < len(words)-1 {
			token += " "
		}
		conn.WriteJSON(WSChatToken{Token: token, Index: i})
	}
}

func getUserIDFromContext(c *gin.Context) (uint, bool) {
	val, exists := c.Get("userId")
	if !exists {
		return 0, false
	}
	userID, ok := val.(uint)
	return userID, ok
}
