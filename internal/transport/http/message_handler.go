package httptransport

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"privmail/backend/internal/domain"
	"privmail/backend/internal/service"
	"privmail/backend/internal/storage"
)

// MessageHandler 消息相关端点。
type MessageHandler struct {
	delivery *service.DeliveryService
	messages *service.MessageService
	store    domain.Store
}

// NewMessageHandler 创建消息处理器。
func NewMessageHandler(delivery *service.DeliveryService, messages *service.MessageService, store domain.Store) *MessageHandler {
	return &MessageHandler{
		delivery: delivery,
		messages: messages,
		store:    store,
	}
}

// viewer 从上下文加载当前认证账号。
func (h *MessageHandler) viewer(c *gin.Context) (*domain.Account, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		Unauthorized(c, MsgAuthRequired)
		return nil, false
	}
	account, err := h.store.GetAccount(userID)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return nil, false
	}
	return account, true
}

// viewerOptional 从上下文加载当前账号，匿名请求返回 nil 账号。
func (h *MessageHandler) viewerOptional(c *gin.Context) (*domain.Account, bool) {
	userID := c.GetString("userID")
	if userID == "" {
		return nil, true
	}
	account, err := h.store.GetAccount(userID)
	if err != nil {
		Unauthorized(c, MsgTokenInvalid)
		return nil, false
	}
	return account, true
}

type sendMessageRequest struct {
	ToID  string `json:"toId" binding:"required"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	OwnerID   string    `json:"ownerId"`
	FromID    string    `json:"fromId"`
	ToID      string    `json:"toId,omitempty"`
	IsSpam    bool      `json:"isSpam"`
	IsRead    bool      `json:"isRead"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

type deliveryResponse struct {
	SenderCopy    messageResponse  `json:"senderCopy"`
	RecipientCopy *messageResponse `json:"recipientCopy,omitempty"`
}

type messageListResponse struct {
	Items []messageResponse `json:"items"`
	Count int               `json:"count"`
}

// sendMessage godoc
// @Summary 发送消息
// @Description 向指定账号发送一条消息，产生发件人与收件人两份副本
// @Tags Messages
// @Accept json
// @Produce json
// @Param request body sendMessageRequest true "消息内容"
// @Success 201 {object} deliveryResponse
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages [post]
func (h *MessageHandler) sendMessage(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	result, err := h.delivery.Send(service.SendInput{
		FromID:         viewer.ID,
		ToID:           req.ToID,
		Title:          req.Title,
		Body:           req.Body,
		CreatorAddress: c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTitleEmpty),
			errors.Is(err, domain.ErrBodyEmpty),
			errors.Is(err, domain.ErrTitleTooLong):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, service.ErrSenderBanned):
			Forbidden(c, GetErrorMessage(err))
		case errors.Is(err, storage.ErrAccountNotFound):
			NotFound(c, GetErrorMessage(storage.ErrAccountNotFound))
		default:
			InternalError(c, MsgMessageSendFailed)
		}
		return
	}

	resp := deliveryResponse{SenderCopy: toMessageResponse(result.SenderCopy)}
	if result.RecipientCopy != nil {
		r := toMessageResponse(result.RecipientCopy)
		resp.RecipientCopy = &r
	}
	Created(c, resp)
}

// listMessages godoc
// @Summary 获取消息列表
// @Description 返回当前账号邮箱内指定文件夹视图下的消息，支持 q 参数检索
// @Tags Messages
// @Produce json
// @Param folder query string false "文件夹: received/unread/sent/spam/deleted，留空为全部"
// @Param q query string false "检索关键词（标题/正文）"
// @Success 200 {object} messageListResponse
// @Failure 400 {object} Response
// @Router /v1/messages [get]
func (h *MessageHandler) listMessages(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	folder := domain.Folder(c.Query("folder"))
	messages, err := h.messages.Search(viewer.ID, folder, c.Query("q"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidFolder) {
			BadRequest(c, GetErrorMessage(err))
			return
		}
		InternalError(c, MsgMessageListFailed)
		return
	}

	items := make([]messageResponse, 0, len(messages))
	for i := range messages {
		items = append(items, toMessageResponse(&messages[i]))
	}
	Success(c, messageListResponse{Items: items, Count: len(items)})
}

// getMessage godoc
// @Summary 获取消息详情
// @Description 拥有者直接可见；匿名或第三方访问者可携带 key 参数（链接访问密钥）
// @Tags Messages
// @Produce json
// @Param id path string true "消息ID"
// @Param key query string false "链接访问密钥"
// @Success 200 {object} messageResponse
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id} [get]
func (h *MessageHandler) getMessage(c *gin.Context) {
	viewer, ok := h.viewerOptional(c)
	if !ok {
		return
	}

	message, err := h.messages.Get(viewer, c.Param("id"), c.Query("key"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotFound):
			NotFound(c, MsgMessageNotFound)
		case errors.Is(err, service.ErrNotVisible):
			Forbidden(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMessageGetFailed)
		}
		return
	}
	Success(c, toMessageResponse(message))
}

// issueLink godoc
// @Summary 生成消息访问链接密钥
// @Description 为自己的消息签发一个绑定到该消息的访问密钥
// @Tags Messages
// @Produce json
// @Param id path string true "消息ID"
// @Success 200 {object} object{key=string}
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id}/link [get]
func (h *MessageHandler) issueLink(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	key, err := h.messages.IssueLink(viewer, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotFound):
			NotFound(c, MsgMessageNotFound)
		case errors.Is(err, service.ErrNotOwner):
			Forbidden(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgLinkIssueFailed)
		}
		return
	}
	Success(c, gin.H{"key": key})
}

// buildResponseDraft godoc
// @Summary 生成回复/转发草稿
// @Description 基于一条消息生成带引用正文的回复草稿，forward=true 时为转发
// @Tags Messages
// @Produce json
// @Param id path string true "消息ID"
// @Param forward query boolean false "是否转发"
// @Success 200 {object} domain.Draft
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id}/respond [get]
func (h *MessageHandler) buildResponseDraft(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	message, err := h.messages.Get(viewer, c.Param("id"), "")
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrMessageNotFound):
			NotFound(c, MsgMessageNotFound)
		case errors.Is(err, service.ErrNotVisible):
			Forbidden(c, GetErrorMessage(err))
		default:
			InternalError(c, MsgMessageGetFailed)
		}
		return
	}

	forward, _ := strconv.ParseBool(c.DefaultQuery("forward", "false"))
	draft, err := h.delivery.BuildResponse(message, forward)
	if err != nil {
		InternalError(c, MsgInternalError)
		return
	}
	Success(c, draft)
}

type setReadRequest struct {
	IsRead bool `json:"isRead"`
}

// setRead godoc
// @Summary 更新消息已读状态
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "消息ID"
// @Param request body setReadRequest true "已读状态"
// @Success 200 {object} messageResponse
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id}/read [patch]
func (h *MessageHandler) setRead(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	var req setReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.messages.SetRead(viewer, c.Param("id"), req.IsRead)
	if err != nil {
		h.writeMutateError(c, err)
		return
	}
	Success(c, toMessageResponse(message))
}

// deleteMessage godoc
// @Summary 删除消息
// @Description 软删除自己的副本，对方的副本不受影响
// @Tags Messages
// @Param id path string true "消息ID"
// @Success 204
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id} [delete]
func (h *MessageHandler) deleteMessage(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	if _, err := h.messages.SetDeleted(viewer, c.Param("id"), true); err != nil {
		h.writeMutateError(c, err)
		return
	}
	NoContent(c)
}

// restoreMessage godoc
// @Summary 恢复已删除的消息
// @Tags Messages
// @Produce json
// @Param id path string true "消息ID"
// @Success 200 {object} messageResponse
// @Failure 403 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id}/restore [post]
func (h *MessageHandler) restoreMessage(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	message, err := h.messages.SetDeleted(viewer, c.Param("id"), false)
	if err != nil {
		h.writeMutateError(c, err)
		return
	}
	Success(c, toMessageResponse(message))
}

// markAllRead godoc
// @Summary 全部标记已读
// @Description 将当前账号邮箱内全部未读消息一次性置为已读
// @Tags Messages
// @Produce json
// @Success 200 {object} object{affected=int}
// @Router /v1/messages/mark-all-read [post]
func (h *MessageHandler) markAllRead(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}

	affected, err := h.messages.MarkAllRead(viewer.ID)
	if err != nil {
		InternalError(c, MsgMessageUpdateFailed)
		return
	}
	Success(c, gin.H{"affected": affected})
}

// unreadCount godoc
// @Summary 获取未读计数
// @Tags Messages
// @Produce json
// @Success 200 {object} object{unreadCount=int}
// @Router /v1/messages/unread-count [get]
func (h *MessageHandler) unreadCount(c *gin.Context) {
	viewer, ok := h.viewer(c)
	if !ok {
		return
	}
	Success(c, gin.H{"unreadCount": viewer.UnreadCount})
}

type automatedMessageRequest struct {
	ToID  string `json:"toId" binding:"required"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// createAutomated godoc
// @Summary 发送系统自动消息
// @Description 以系统账号身份向指定账号投递一条消息（管理员）
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body automatedMessageRequest true "消息内容"
// @Success 201 {object} messageResponse
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/admin/messages [post]
func (h *MessageHandler) createAutomated(c *gin.Context) {
	var req automatedMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	message, err := h.delivery.CreateAutomated(req.ToID, req.Title, req.Body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTitleEmpty), errors.Is(err, domain.ErrBodyEmpty):
			BadRequest(c, GetErrorMessage(err))
		case errors.Is(err, storage.ErrAccountNotFound):
			NotFound(c, GetErrorMessage(storage.ErrAccountNotFound))
		default:
			InternalError(c, MsgMessageSendFailed)
		}
		return
	}
	Created(c, toMessageResponse(message))
}

func (h *MessageHandler) writeMutateError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrMessageNotFound):
		NotFound(c, MsgMessageNotFound)
	case errors.Is(err, service.ErrNotOwner):
		Forbidden(c, GetErrorMessage(service.ErrNotOwner))
	default:
		InternalError(c, MsgMessageUpdateFailed)
	}
}

// toMessageResponse 转换消息实体为响应体。
func toMessageResponse(message *domain.Message) messageResponse {
	return messageResponse{
		ID:        message.ID,
		Title:     message.Title,
		Body:      message.Body,
		OwnerID:   message.OwnerID,
		FromID:    message.FromID,
		ToID:      message.ToID,
		IsSpam:    message.IsSpam,
		IsRead:    message.IsRead,
		IsDeleted: message.IsDeleted,
		CreatedAt: message.CreatedAt,
	}
}
