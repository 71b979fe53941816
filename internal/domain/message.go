package domain

import "time"

// Message 表示站内信的一份物理副本。
//
// 一次逻辑发送最多产生两行：发件人副本（OwnerID == FromID，始终已读）
// 和收件人副本（OwnerID == ToID，经过垃圾判定）。自发自收只有发件人副本。
// 行永远不会被物理删除，删除只是 IsDeleted 软删除标记。
type Message struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Title          string    `json:"title" gorm:"type:varchar(500);not null"`
	Body           string    `json:"body" gorm:"type:text;not null"`
	OwnerID        string    `json:"ownerId" gorm:"type:varchar(36);index;not null"`
	FromID         string    `json:"fromId" gorm:"type:varchar(36);index;not null"`
	ToID           string    `json:"toId" gorm:"type:varchar(36);index"`
	IsSpam         bool      `json:"isSpam" gorm:"default:false;index"`
	IsRead         bool      `json:"isRead" gorm:"default:false;index"`
	IsDeleted      bool      `json:"isDeleted" gorm:"default:false;index"`
	CreatedAt      time.Time `json:"createdAt"`
	CreatorAddress string    `json:"-" gorm:"type:varchar(64)"`
}

// DeliveryResult 表示一次逻辑发送的结果。
//
// RecipientCopy 在自发自收（from == to）时为 nil。
type DeliveryResult struct {
	SenderCopy    *Message `json:"senderCopy"`
	RecipientCopy *Message `json:"recipientCopy,omitempty"`
}

// Draft 表示未保存的回复/转发草稿。
//
// 由 BuildResponse 生成，FromID 由调用方在发送时填入当前操作者。
type Draft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	ToID  string `json:"toId,omitempty"`
}
