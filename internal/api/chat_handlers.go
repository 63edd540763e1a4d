package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"maritime-tutor/internal/chat"
	"maritime-tutor/internal/chatturn"
	"maritime-tutor/internal/config"
	"maritime-tutor/internal/crag"
	"maritime-tutor/internal/db"
)

// GET /config's generative-model line is the only model identity the
// tutor exposes now — there is a single configured generative tier, not
// a user-selectable list, so the teacher's ListLLMsHandler/CreateChatHandler
// model-selection surface is gone; CreateChatHandler just opens a chat
// against the one configured model.

// CreateChatHandler opens a new chat for the current user.
func CreateChatHandler(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var req struct {
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		chatInst := chat.Chat{
			Title:     req.Title,
			UserID:    userID,
			ModelName: cfg.Generative.Name,
			CreatedAt: time.Now(),
		}
		if err := db.DB.Create(&chatInst).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create chat"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"id":        chatInst.ID,
			"title":     chatInst.Title,
			"model":     chatInst.ModelName,
			"createdAt": chatInst.CreatedAt,
		})
	}
}

// ListChatsHandler lists every chat for the current user that has at
// least one user message.
func ListChatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		var chats []chat.Chat
		if err := db.DB.
			Where("user_id = ?", userID).
			Where("id IN (SELECT chat_id FROM messages WHERE sender = 'user')").
			Order("created_at desc").
			Find(&chats).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch chats"})
			return
		}

		c.JSON(http.StatusOK, chats)
	}
}

// EditChatTitleHandler renames a chat.
func EditChatTitleHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		idUint, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}

		var req struct {
			Title string `json:"title"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing title"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", idUint, userID).First(&chatInst).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}

		chatInst.Title = req.Title
		if err := db.DB.Save(&chatInst).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update title"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"id": chatInst.ID, "title": chatInst.Title})
	}
}

// DeleteChatHandler deletes a chat and its messages.
func DeleteChatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		idUint, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", idUint, userID).First(&chatInst).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}

		if err := db.DB.Where("chat_id = ?", chatInst.ID).Delete(&chat.Message{}).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete messages"})
			return
		}

		if err := db.DB.Delete(&chatInst).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete chat"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"deleted": true})
	}
}

// GetChatHandler fetches a single chat by id.
func GetChatHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		idUint, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", idUint, userID).First(&chatInst).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch chat"})
			}
			return
		}

		c.JSON(http.StatusOK, chatInst)
	}
}

// ListMessagesHandler lists every message in a chat.
func ListMessagesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		idUint, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", idUint, userID).First(&chatInst).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}

		var messages []chat.Message
		if err := db.DB.Where("chat_id = ?", chatInst.ID).Order("created_at asc").Find(&messages).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch messages"})
			return
		}

		c.JSON(http.StatusOK, messages)
	}
}

// SendMessageHandler runs one turn of the chat orchestrator (spec §4.9)
// and returns its API-shaped response. Replaces the teacher's raw
// CallLLM/SearxNG round-trip entirely: retrieval, grading, rewriting,
// generation, verification, and background persistence/insight/graph
// updates all happen inside chatturn.Orchestrator.HandleTurn.
func SendMessageHandler(turns *chatturn.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := getUserIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		idUint, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
			return
		}

		var chatInst chat.Chat
		if err := db.DB.Where("id = ? AND user_id = ?", idUint, userID).First(&chatInst).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}

		var req struct {
			Content string `json:"content"`
			Role    string `json:"role"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Content == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing content"})
			return
		}

		role := crag.RoleStudent
		switch req.Role {
		case string(crag.RoleTeacher):
			role = crag.RoleTeacher
		case string(crag.RoleAdmin):
			role = crag.RoleAdmin
		}

		userIDStr := strconv.FormatUint(uint64(userID), 10)
		out, err := turns.HandleTurn(c.Request.Context(), chatturn.Input{
			UserID:    userIDStr,
			ChatID:    chatInst.ID,
			SessionID: userIDStr + "-" + strconv.FormatUint(uint64(chatInst.ID), 10),
			Message:   req.Content,
			Role:      role,
		})
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "turn failed", "detail": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"reply": gin.H{
				"sender":    "bot",
				"content":   out.Message,
				"createdAt": time.Now(),
			},
			"sources":             out.Sources,
			"suggested_questions": out.SuggestedQuestions,
			"topics":              out.Topics,
			"reasoning_trace":     out.ReasoningTrace,
			"thinking":            out.Thinking,
			"warning":             out.Warning,
			"is_blocked":          out.IsBlocked,
		})
	}
}
