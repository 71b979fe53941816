package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderValid(t *testing.T) {
	tests := []struct {
		name     string
		folder   Folder
		expected bool
	}{
		{"All (empty)", FolderAll, true},
		{"Received", FolderReceived, true},
		{"Unread", FolderUnread, true},
		{"Sent", FolderSent, true},
		{"Spam", FolderSpam, true},
		{"Deleted", FolderDeleted, true},
		{"Unknown folder", Folder("archive"), false},
		{"Case sensitive", Folder("Received"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.folder.Valid())
		})
	}
}

func TestFolderMatches(t *testing.T) {
	received := &Message{OwnerID: "u1", FromID: "u2", ToID: "u1"}
	receivedRead := &Message{OwnerID: "u1", FromID: "u2", ToID: "u1", IsRead: true}
	sent := &Message{OwnerID: "u1", FromID: "u1", ToID: "u2", IsRead: true}
	spam := &Message{OwnerID: "u1", FromID: "u2", ToID: "u1", IsSpam: true}
	deleted := &Message{OwnerID: "u1", FromID: "u2", ToID: "u1", IsDeleted: true}
	selfSend := &Message{OwnerID: "u1", FromID: "u1", ToID: "u1", IsRead: true}

	tests := []struct {
		name     string
		folder   Folder
		message  *Message
		expected bool
	}{
		{"received matches incoming copy", FolderReceived, received, true},
		{"received matches read incoming copy", FolderReceived, receivedRead, true},
		{"received rejects sender copy", FolderReceived, sent, false},
		{"received rejects deleted copy", FolderReceived, deleted, false},

		{"unread matches unread incoming copy", FolderUnread, received, true},
		{"unread rejects read copy", FolderUnread, receivedRead, false},
		{"unread rejects sender copy", FolderUnread, sent, false},

		{"sent matches sender copy", FolderSent, sent, true},
		{"sent rejects incoming copy", FolderSent, received, false},

		{"spam matches flagged copy", FolderSpam, spam, true},
		{"spam rejects clean copy", FolderSpam, received, false},

		{"deleted matches soft-deleted copy", FolderDeleted, deleted, true},
		{"deleted rejects active copy", FolderDeleted, received, false},

		{"all matches everything", FolderAll, deleted, true},

		// 自发自收副本同时出现在收件与发件视图
		{"self-send in received", FolderReceived, selfSend, true},
		{"self-send in sent", FolderSent, selfSend, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.folder.Matches(tt.message))
		})
	}
}

func TestSentBy(t *testing.T) {
	pred := SentBy("u1")

	// 命中的是收件方持有的副本
	assert.True(t, pred(&Message{OwnerID: "u2", FromID: "u1", ToID: "u2"}))
	// 发件人自己的副本不算
	assert.False(t, pred(&Message{OwnerID: "u1", FromID: "u1", ToID: "u2"}))
	// 别人发出的不算
	assert.False(t, pred(&Message{OwnerID: "u1", FromID: "u2", ToID: "u1"}))
}
