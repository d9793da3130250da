package models

import "time"

// Message is one chat message as delivered by the message source.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Author    *Author   `json:"author,omitempty"`
	Embeds    []Embed   `json:"embeds"`
}

type Author struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Embed is a structured attachment (rich card) of a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

type EmbedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type EmbedFooter struct {
	Text string `json:"text"`
}
