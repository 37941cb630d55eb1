// Package teletest provides an in-memory tele.Context for handler tests.
package teletest

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Output records one outbound call made through the context.
type Output struct {
	Kind      string // send, edit, edit_or_send, reply
	Text      string
	Markup    *tele.ReplyMarkup
	ParseMode tele.ParseMode
}

// Context implements the parts of tele.Context used by handlers and
// middlewares. Calling any other method panics through the nil embed.
type Context struct {
	tele.Context

	mu        sync.Mutex
	upd       tele.Update
	user      *tele.User
	chat      *tele.Chat
	store     map[string]any
	outputs   []Output
	responses []*tele.CallbackResponse

	// SendErr, when set, is returned by every outbound call.
	SendErr error
}

// NewMessage builds a context for a private text message from userID.
func NewMessage(updateID int, userID int64, text string) *Context {
	user := &tele.User{ID: userID, FirstName: "User"}
	chat := &tele.Chat{ID: userID, Type: tele.ChatPrivate}
	msg := &tele.Message{ID: updateID, Sender: user, Chat: chat, Text: text}
	return newContext(tele.Update{ID: updateID, Message: msg}, user, chat)
}

// NewCommand builds a context for "/cmd payload" the way telebot parses it.
func NewCommand(updateID int, userID int64, command, payload string) *Context {
	text := command
	if payload != "" {
		text += " " + payload
	}
	c := NewMessage(updateID, userID, text)
	c.upd.Message.Payload = payload
	return c
}

// NewCallback builds a context for an inline button press carrying the
// raw "\f<unique>|<payload>" data, as delivered to tele.OnCallback.
func NewCallback(updateID int, userID int64, unique, payload string) *Context {
	user := &tele.User{ID: userID, FirstName: "User"}
	chat := &tele.Chat{ID: userID, Type: tele.ChatPrivate}
	data := "\f" + unique
	if payload != "" {
		data += "|" + payload
	}
	cb := &tele.Callback{
		ID:      "cb",
		Sender:  user,
		Data:    data,
		Message: &tele.Message{ID: updateID, Sender: user, Chat: chat},
	}
	return newContext(tele.Update{ID: updateID, Callback: cb}, user, chat)
}

func newContext(upd tele.Update, user *tele.User, chat *tele.Chat) *Context {
	return &Context{upd: upd, user: user, chat: chat, store: make(map[string]any)}
}

// WithSender overrides the sender's display fields.
func (c *Context) WithSender(first, last, username string) *Context {
	c.user.FirstName = first
	c.user.LastName = last
	c.user.Username = username
	return c
}

func (c *Context) Update() tele.Update { return c.upd }
func (c *Context) Sender() *tele.User { return c.user }
func (c *Context) Chat() *tele.Chat { return c.chat }
func (c *Context) Callback() *tele.Callback { return c.upd.Callback }

func (c *Context) Message() *tele.Message {
	switch {
	case c.upd.Message != nil:
		return c.upd.Message
	case c.upd.Callback != nil:
		return c.upd.Callback.Message
	}
	return nil
}

func (c *Context) Text() string {
	if c.upd.Message == nil {
		return ""
	}
	return c.upd.Message.Text
}

func (c *Context) Data() string {
	switch {
	case c.upd.Callback != nil:
		return c.upd.Callback.Data
	case c.upd.Message != nil:
		return c.upd.Message.Payload
	}
	return ""
}

func (c *Context) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store[key]
}

func (c *Context) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = val
}

func (c *Context) Send(what interface{}, opts ...interface{}) error {
	return c.record("send", what, opts)
}

func (c *Context) Reply(what interface{}, opts ...interface{}) error {
	return c.record("reply", what, opts)
}

func (c *Context) Edit(what interface{}, opts ...interface{}) error {
	return c.record("edit", what, opts)
}

func (c *Context) EditOrSend(what interface{}, opts ...interface{}) error {
	return c.record("edit_or_send", what, opts)
}

func (c *Context) EditOrReply(what interface{}, opts ...interface{}) error {
	return c.record("edit_or_reply", what, opts)
}

func (c *Context) Respond(resp ...*tele.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(resp) == 0 {
		c.responses = append(c.responses, &tele.CallbackResponse{})
		return nil
	}
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *Context) record(kind string, what interface{}, opts []interface{}) error {
	if c.SendErr != nil {
		return c.SendErr
	}
	out := Output{Kind: kind}
	if s, ok := what.(string); ok {
		out.Text = s
	}
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			out.Markup = v
		case *tele.SendOptions:
			if v != nil {
				out.Markup = v.ReplyMarkup
				out.ParseMode = v.ParseMode
			}
		case tele.ParseMode:
			out.ParseMode = v
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outputs = append(c.outputs, out)
	return nil
}

// Outputs returns a copy of everything sent so far.
func (c *Context) Outputs() []Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Output(nil), c.outputs...)
}

// Last returns the most recent output, or the zero Output.
func (c *Context) Last() Output {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outputs) == 0 {
		return Output{}
	}
	return c.outputs[len(c.outputs)-1]
}

// Responses returns callback answers recorded so far.
func (c *Context) Responses() []*tele.CallbackResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*tele.CallbackResponse(nil), c.responses...)
}

// Buttons flattens an inline keyboard into rows of "unique|data" strings.
func Buttons(m *tele.ReplyMarkup) [][]string {
	if m == nil {
		return nil
	}
	rows := make([][]string, 0, len(m.InlineKeyboard))
	for _, row := range m.InlineKeyboard {
		r := make([]string, 0, len(row))
		for _, b := range row {
			key := b.Unique
			if b.Data != "" {
				key += "|" + b.Data
			}
			r = append(r, key)
		}
		rows = append(rows, r)
	}
	return rows
}
