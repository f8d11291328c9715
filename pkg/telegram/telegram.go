package telegram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

type sendMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// Send posts a message to each chat through the raw Bot API. Used for chat
// reachability probes; regular notices go through the bot library.
func Send(token string, chatIDs []int64, message string) error {
	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token)
	for _, chatID := range chatIDs {
		body, err := json.Marshal(sendMessage{ChatID: chatID, Text: message})
		if err != nil {
			return fmt.Errorf("marshal message for chat_id %d: %w", chatID, err)
		}
		resp, err := http.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to send to chat_id %d: %w", chatID, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram API returned %d for chat_id %d", resp.StatusCode, chatID)
		}
	}
	return nil
}
