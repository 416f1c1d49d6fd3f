package chat

import (
	"time"
	"gorm.io/gorm"
)

type Chat struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	Title        string         `json:"title"`
	UserID       uint           `json:"user_id"`
	ModelName    string         `json:"model_name"`     // LLM model assigned to this chat
	LlmSessionID string         `json:"llm_session_id"` // LLM session token/id for context
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`
	Messages     []Message      `json:"-" gorm:"foreignKey:ChatID"`
}

type Message struct {
	ID        uint           `json:"id" gorm:"primaryKey"`
	ChatID    uint           `json:"chat_id"`
	Sender    string         `json:"sender"`   // "user" or "bot"
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// Add a trivial method so coverage can be measured
func (c *Chat) DisplayTitle() string {
	return c.Title
}

// AppendExchange records one prompt/response pair as two messages on
// the given chat, creating the chat first when chatID is zero.
func AppendExchange(db *gorm.DB, userID, chatID uint, prompt, response string) (uint, error) {
	if chatID == 0 {
		c := Chat{UserID: userID, Title: prompt}
		if err := db.Create(&c).Error; err != nil {
			return 0, err
		}
		chatID = c.ID
	}
	msgs := []Message{
		{ChatID: chatID, Sender: "user", Content: prompt},
		{ChatID: chatID, Sender: "bot", Content: response},
	}
	if err := db.Create(&msgs).Error; err != nil {
		return chatID, err
	}
	return chatID, nil
}
