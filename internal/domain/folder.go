package domain

// Folder 表示邮箱的派生视图，由副本标志计算而来，不落库。
type Folder string

const (
	// FolderAll 不过滤，返回该账号的全部副本
	FolderAll Folder = ""
	// FolderReceived 活跃且 owner == to 的副本
	FolderReceived Folder = "received"
	// FolderUnread 收件且未读的副本
	FolderUnread Folder = "unread"
	// FolderSent 活跃且 owner == from 的副本
	FolderSent Folder = "sent"
	// FolderSpam 活跃且被标记为垃圾的副本
	FolderSpam Folder = "spam"
	// FolderDeleted 已软删除的副本
	FolderDeleted Folder = "deleted"
)

// Valid 判断文件夹名是否合法。
func (f Folder) Valid() bool {
	switch f {
	case FolderAll, FolderReceived, FolderUnread, FolderSent, FolderSpam, FolderDeleted:
		return true
	}
	return false
}

// Matches 判断一份副本是否属于该文件夹视图。
//
// 副本永远只属于一个邮箱（owner），调用方需先按 owner 圈定集合。
func (f Folder) Matches(m *Message) bool {
	switch f {
	case FolderReceived:
		return !m.IsDeleted && m.OwnerID == m.ToID
	case FolderUnread:
		return !m.IsDeleted && m.OwnerID == m.ToID && !m.IsRead
	case FolderSent:
		return !m.IsDeleted && m.OwnerID == m.FromID
	case FolderSpam:
		return !m.IsDeleted && m.IsSpam
	case FolderDeleted:
		return m.IsDeleted
	default:
		return true
	}
}

// SentBy 返回"某账号发出的消息"谓词：选中的是收件人持有的副本
// （from == user 且 owner != user），因为只有这些副本带有
// 收件方视角的垃圾判定结果。自动封禁统计依赖这一点。
func SentBy(userID string) func(*Message) bool {
	return func(m *Message) bool {
		return m.FromID == userID && m.OwnerID != userID
	}
}
