package birthdaybot

import (
	"encoding/json"
	"fmt"

	"github.com/dhamidi/birthdaybot/history"
	"github.com/spf13/afero"
	"google.golang.org/genai"
)

// LoadConversationFromFile reads a JSON array of *genai.Content from path
// on fsys. An empty path yields an empty history.
func LoadConversationFromFile(fsys afero.Fs, path string) ([]*genai.Content, error) {
	if path == "" {
		return nil, nil
	}

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading conversation file %q: %w", path, err)
	}

	var conversation []*genai.Content
	if err := json.Unmarshal(data, &conversation); err != nil {
		return nil, fmt.Errorf("decoding conversation file %q: %w", path, err)
	}
	return conversation, nil
}

// SaveConversationToFile writes conversation to path on fsys as indented JSON.
func SaveConversationToFile(fsys afero.Fs, path string, conversation []*genai.Content) error {
	data, err := json.MarshalIndent(conversation, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversation: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		return fmt.Errorf("writing conversation file %q: %w", path, err)
	}
	return nil
}

// ContentsFromConversation decodes stored message payloads back into
// *genai.Content values.
func ContentsFromConversation(conv *history.Conversation) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(conv.Messages))
	for i, msg := range conv.Messages {
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("encoding message %d of %s: %w", i, conv.ID, err)
		}
		var content genai.Content
		if err := json.Unmarshal(data, &content); err != nil {
			return nil, fmt.Errorf("decoding message %d of %s: %w", i, conv.ID, err)
		}
		contents = append(contents, &content)
	}
	return contents, nil
}

// SyncConversation appends the contents conv does not hold yet. contents
// is expected to start with the messages already recorded in conv.
func SyncConversation(conv *history.Conversation, contents []*genai.Content) {
	for _, content := range contents[min(len(conv.Messages), len(contents)):] {
		conv.Append(content)
	}
}
