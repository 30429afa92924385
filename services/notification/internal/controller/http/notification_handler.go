package http

import (
	"errors"
	"net/http"
	"strconv"

	"harulog/pkg/jwt"
	"harulog/pkg/logger"
	"harulog/services/notification/internal/entity"
	"harulog/services/notification/internal/usecase"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	dispatcher    *usecase.Dispatcher
	subscriptions *usecase.SubscriptionManager
	logger        *logger.Logger
	jwtService    *jwt.Service
}

func NewNotificationHandler(dispatcher *usecase.Dispatcher, subscriptions *usecase.SubscriptionManager, log *logger.Logger, jwtService *jwt.Service) *NotificationHandler {
	return &NotificationHandler{
		dispatcher:    dispatcher,
		subscriptions: subscriptions,
		logger:        log,
		jwtService:    jwtService,
	}
}

// Subscribe godoc
// @Summary      Subscribe to the notification stream
// @Description  Opens a Server-Sent Events stream for the authenticated user. Pass Last-Event-ID (header or lastEventId query) to replay missed events.
// @Tags         notifications
// @Produce      text/event-stream
// @Param        token query string false "JWT (EventSource cannot set headers)"
// @Param        lastEventId query string false "Replay cursor; empty means future events only"
// @Success      200 {string} string "event stream"
// @Failure      400 {object} map[string]string
// @Failure      401 {object} map[string]string
// @Router       /notifications/subscribe [get]
func (h *NotificationHandler) Subscribe(c *gin.Context) {
	userID := h.resolveUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	lastEventID := c.GetHeader("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = c.Query("lastEventId")
	}

	ch, backlog, err := h.subscriptions.Subscribe(c.Request.Context(), userID, lastEventID)
	if err != nil {
		if errors.Is(err, usecase.ErrBadCursor) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid lastEventId"})
			return
		}
		h.logger.Error("Failed to subscribe user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe"})
		return
	}
	defer h.subscriptions.Unsubscribe(ch)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	for _, ev := range backlog {
		if err := writeEvent(c, ev); err != nil {
			h.logger.Warn("Replay write failed for user %s: %v", userID, err)
			return
		}
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch.Events():
			if !ok {
				// Channel evicted by the dispatcher; client reconnects and replays.
				return
			}
			if err := writeEvent(c, ev); err != nil {
				h.logger.Warn("Stream write failed for user %s: %v", userID, err)
				return
			}
		}
	}
}

func writeEvent(c *gin.Context, ev entity.Event) error {
	if err := sse.Encode(c.Writer, sse.Event{
		Id:    strconv.FormatInt(ev.ID, 10),
		Event: "notification",
		Data:  ev,
	}); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

// resolveUserID takes the identity from the auth middleware when present,
// otherwise from a token query parameter (EventSource cannot set headers).
func (h *NotificationHandler) resolveUserID(c *gin.Context) string {
	if userID := c.GetString("user_id"); userID != "" {
		return userID
	}

	token := c.Query("token")
	if token == "" {
		return ""
	}
	claims, err := h.jwtService.ValidateToken(token)
	if err != nil {
		return ""
	}
	return claims.UserID
}

type FriendRequestNotification struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	SenderID    string `json:"sender_id" binding:"required"`
	SenderName  string `json:"sender_name" binding:"required"`
}

type FriendAcceptNotification struct {
	RecipientID  string `json:"recipient_id" binding:"required"`
	AcceptorID   string `json:"acceptor_id" binding:"required"`
	AcceptorName string `json:"acceptor_name" binding:"required"`
}

type MessageNotification struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	SenderID    string `json:"sender_id" binding:"required"`
	MessageID   string `json:"message_id" binding:"required"`
}

type CommentNotification struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	CommenterID string `json:"commenter_id" binding:"required"`
	EntryType   string `json:"entry_type" binding:"required,oneof=schedule diary"`
	EntryID     string `json:"entry_id" binding:"required"`
}

type FriendPostNotification struct {
	RecipientID string `json:"recipient_id" binding:"required"`
	AuthorID    string `json:"author_id" binding:"required"`
	EntryType   string `json:"entry_type" binding:"required,oneof=schedule diary"`
	EntryID     string `json:"entry_id" binding:"required"`
}

// SendFriendRequest godoc
// @Summary      Notify a user of a friend request
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body FriendRequestNotification true "Friend request"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /notifications/internal/friend-request [post]
func (h *NotificationHandler) SendFriendRequest(c *gin.Context) {
	var req FriendRequestNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatch(c, req.RecipientID, entity.KindFriendRequest, map[string]interface{}{
		"sender_id":   req.SenderID,
		"sender_name": req.SenderName,
	})
}

// SendFriendAccept godoc
// @Summary      Notify a user their friend request was accepted
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body FriendAcceptNotification true "Friend accept"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /notifications/internal/friend-accept [post]
func (h *NotificationHandler) SendFriendAccept(c *gin.Context) {
	var req FriendAcceptNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatch(c, req.RecipientID, entity.KindFriendAccept, map[string]interface{}{
		"acceptor_id":   req.AcceptorID,
		"acceptor_name": req.AcceptorName,
	})
}

// SendMessage godoc
// @Summary      Notify a user of a new direct message
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body MessageNotification true "Message"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /notifications/internal/message [post]
func (h *NotificationHandler) SendMessage(c *gin.Context) {
	var req MessageNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatch(c, req.RecipientID, entity.KindMessage, map[string]interface{}{
		"sender_id":  req.SenderID,
		"message_id": req.MessageID,
	})
}

// SendComment godoc
// @Summary      Notify a user of a comment on their schedule or diary entry
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body CommentNotification true "Comment"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /notifications/internal/comment [post]
func (h *NotificationHandler) SendComment(c *gin.Context) {
	var req CommentNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatch(c, req.RecipientID, entity.KindComment, map[string]interface{}{
		"commenter_id": req.CommenterID,
		"entry_type":   req.EntryType,
		"entry_id":     req.EntryID,
	})
}

// SendFriendPost godoc
// @Summary      Notify a user a friend shared a schedule or diary entry with them
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Param        request body FriendPostNotification true "Shared entry"
// @Success      201  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /notifications/internal/friend-post [post]
func (h *NotificationHandler) SendFriendPost(c *gin.Context) {
	var req FriendPostNotification
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.dispatch(c, req.RecipientID, entity.KindFriendPost, map[string]interface{}{
		"author_id":  req.AuthorID,
		"entry_type": req.EntryType,
		"entry_id":   req.EntryID,
	})
}

// dispatch persists and delivers one event. A storage failure is surfaced to
// the calling service so it knows the notification was never recorded.
func (h *NotificationHandler) dispatch(c *gin.Context, recipientID string, kind entity.Kind, payload map[string]interface{}) {
	ev, err := h.dispatcher.Dispatch(c.Request.Context(), recipientID, kind, payload)
	if err != nil {
		h.logger.Error("Failed to dispatch %s notification to user %s: %v", kind, recipientID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record notification"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Notification recorded",
		"event":   ev,
	})
}

// GetNotifications godoc
// @Summary      Get recent notifications
// @Description  Recent notification history for the authenticated user
// @Tags         notifications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        limit query int false "Number of notifications to return (max 100)"
// @Param        offset query int false "Offset for pagination"
// @Success      200  {object}  map[string]interface{}
// @Failure      500  {object}  map[string]string
// @Router       /notifications [get]
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if parsedOffset, err := strconv.Atoi(offsetStr); err == nil && parsedOffset >= 0 {
			offset = parsedOffset
		}
	}

	events, totalCount, err := h.dispatcher.RecentEvents(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.logger.Error("Failed to get notifications: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": events,
		"count":         len(events),
		"total":         totalCount,
		"offset":        offset,
	})
}
