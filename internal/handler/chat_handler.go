package handler

import (
	"net/http"
	"strconv"

	"Amoura/internal/chat"
	"Amoura/internal/middleware"

	"github.com/gin-gonic/gin"
)

type ChatHandler interface {
	Send(c *gin.Context)
	ChatList(c *gin.Context)
	TotalUnread(c *gin.Context)
	Conversation(c *gin.Context)
	MarkRead(c *gin.Context)
	DeleteConversation(c *gin.Context)
	Block(c *gin.Context)
	Unblock(c *gin.Context)
	Relationship(c *gin.Context)
}

type chatHandler struct {
	service *chat.Service
}

func NewChatHandler(service *chat.Service) ChatHandler {
	return &chatHandler{service: service}
}

type sendRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Text       string `json:"text"`
	ImageURL   string `json:"imageUrl"`
}

type blockRequest struct {
	Reason string `json:"reason"`
}

func (h *chatHandler) Send(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    string(chat.CodeValidation),
			"message": "invalid request body",
		}})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), middleware.CallerID(c), req.ReceiverID, req.Text, req.ImageURL)
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *chatHandler) ChatList(c *gin.Context) {
	entries, err := h.service.ChatList(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"chats": entries})
}

func (h *chatHandler) TotalUnread(c *gin.Context) {
	total, err := h.service.TotalUnread(c.Request.Context(), middleware.CallerID(c))
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"total": total})
}

func (h *chatHandler) Conversation(c *gin.Context) {
	otherID := c.Param("otherUserId")
	page, err := strconv.ParseInt(c.DefaultQuery("page", "1"), 10, 64)
	if err != nil || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{
			"code":    string(chat.CodeValidation),
			"message": "invalid page number",
		}})
		return
	}

	result, err := h.service.Conversation(c.Request.Context(), middleware.CallerID(c), otherID, page)
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	if err := h.service.MarkRead(c.Request.Context(), middleware.CallerID(c), c.Param("otherUserId")); err != nil {
		writeChatError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) DeleteConversation(c *gin.Context) {
	if err := h.service.DeleteConversation(c.Request.Context(), middleware.CallerID(c), c.Param("conversationKey")); err != nil {
		writeChatError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) Block(c *gin.Context) {
	var req blockRequest
	_ = c.ShouldBindJSON(&req) // reason is optional

	if err := h.service.Block(c.Request.Context(), middleware.CallerID(c), c.Param("otherUserId"), req.Reason); err != nil {
		writeChatError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) Unblock(c *gin.Context) {
	if err := h.service.Unblock(c.Request.Context(), middleware.CallerID(c), c.Param("otherUserId")); err != nil {
		writeChatError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *chatHandler) Relationship(c *gin.Context) {
	rel, err := h.service.Relationship(c.Request.Context(), middleware.CallerID(c), c.Param("otherUserId"))
	if err != nil {
		writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, rel)
}

// writeChatError maps the taxonomy onto HTTP statuses. The error body
// always carries the code so the client can branch without string
// matching; INSUFFICIENT_BALANCE additionally carries the shortfall.
func writeChatError(c *gin.Context, err error) {
	ce, ok := chat.AsError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
			"code":    string(chat.CodeTransport),
			"message": "internal error",
		}})
		return
	}

	status := http.StatusInternalServerError
	switch ce.Code {
	case chat.CodeValidation:
		status = http.StatusBadRequest
	case chat.CodeBlocked:
		status = http.StatusForbidden
	case chat.CodeInsufficientBalance:
		status = http.StatusPaymentRequired
	case chat.CodeNotFound:
		status = http.StatusNotFound
	}

	c.JSON(status, gin.H{"error": ce})
}
