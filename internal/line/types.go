package line

// Message is one outbound message object. Only the fields for the
// message type in use are set.
type Message struct {
	Type       string      `json:"type"`
	Text       string      `json:"text,omitempty"`
	QuickReply *QuickReply `json:"quickReply,omitempty"`
}

type QuickReply struct {
	Items []QuickReplyItem `json:"items"`
}

type QuickReplyItem struct {
	Type   string `json:"type"`
	Action Action `json:"action"`
}

type Action struct {
	Type  string `json:"type"`
	Label string `json:"label"`
	Text  string `json:"text,omitempty"`
	URI   string `json:"uri,omitempty"`
}

// TextMessage builds a plain text message.
func TextMessage(text string) Message {
	return Message{Type: "text", Text: text}
}

// TextMessageWithChoices builds a text message carrying quick-reply
// buttons. Each choice becomes a message action that echoes its text
// back when tapped.
func TextMessageWithChoices(text string, choices ...string) Message {
	msg := Message{Type: "text", Text: text}
	if len(choices) == 0 {
		return msg
	}
	qr := &QuickReply{Items: make([]QuickReplyItem, 0, len(choices))}
	for _, c := range choices {
		qr.Items = append(qr.Items, QuickReplyItem{
			Type:   "action",
			Action: Action{Type: "message", Label: c, Text: c},
		})
	}
	msg.QuickReply = qr
	return msg
}

type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	PictureURL  string `json:"pictureUrl"`
	Language    string `json:"language"`
}

type BotInfo struct {
	UserID      string `json:"userId"`
	BasicID     string `json:"basicId"`
	PremiumID   string `json:"premiumId"`
	DisplayName string `json:"displayName"`
}

type replyRequest struct {
	ReplyToken string    `json:"replyToken"`
	Messages   []Message `json:"messages"`
}

type pushRequest struct {
	To       string    `json:"to"`
	Messages []Message `json:"messages"`
}
