package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/shopbot/core/logger"
	"github.com/m3rciful/shopbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/shopbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRegistration rejects commands or callbacks missing a name or handler.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicate rejects a second handler for the same command, alias or callback key.
	ErrDuplicate = errors.New("telegram: already registered")
)

// Registry holds the bot's commands, callback handlers and fallbacks. It is
// filled during startup and read concurrently while serving.
type Registry struct {
	mu        sync.RWMutex
	commands  map[string]commands.Command
	aliases   map[string]string // "/alias" -> "/command"
	callbacks map[string]tele.HandlerFunc

	callbackNotFound tele.HandlerFunc
	textFallback     tele.HandlerFunc
}

// NewRegistry returns an empty registry whose unknown callbacks get a toast.
func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]commands.Command),
		aliases:   make(map[string]string),
		callbacks: make(map[string]tele.HandlerFunc),
		callbackNotFound: func(c tele.Context) error {
			return tghelpers.Respond(c, "Unsupported action")
		},
	}
}

func slash(name string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return "/" + name
}

func wireWarn(event string, err error, attrs ...slog.Attr) error {
	attrs = append(attrs, slog.String("err", err.Error()))
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, event, attrs...)
	return err
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Aliases may be given with or without the slash.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "" {
		return wireWarn("register.command.skip", ErrInvalidRegistration, slog.String("name", name))
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	taken := func(n string) bool {
		_, isCmd := r.commands[n]
		_, isAlias := r.aliases[n]
		return isCmd || isAlias
	}
	if taken(name) {
		return wireWarn("register.command.duplicate", fmt.Errorf("%w: %s", ErrDuplicate, name), slog.String("name", name))
	}
	for _, a := range cmd.Aliases {
		if a = slash(a); taken(a) || a == name {
			return wireWarn("register.command.duplicate", fmt.Errorf("%w: %s", ErrDuplicate, a), slog.String("name", name))
		}
	}

	r.commands[name] = cmd
	for _, a := range cmd.Aliases {
		r.aliases[slash(a)] = name
	}
	return nil
}

// ListCommands returns commands sorted by name for the Telegram menu,
// leaving out hidden ones when visibleOnly is set.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if !visibleOnly || !cmd.Hidden {
			list = append(list, tele.Command{Text: name, Description: cmd.Description})
		}
	}
	slices.SortFunc(list, func(a, b tele.Command) int { return strings.Compare(a.Text, b.Text) })
	return list
}

// LookupCommand resolves a command name or alias, with or without the
// slash, to its canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = slash(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		name = canonical
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// Commands returns a copy of the registered commands keyed by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback maps an inline button key to handler.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		return wireWarn("register.callback.skip", ErrInvalidRegistration, slog.String("key", key))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callbacks[key]; ok {
		return wireWarn("register.callback.duplicate", fmt.Errorf("%w: %s", ErrDuplicate, key), slog.String("key", key))
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback returns the handler bound to key.
func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns the registered keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// SetCallbackNotFound replaces the handler for unknown callback keys.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbackNotFound = h
}

// CallbackNotFound returns the handler for unknown callback keys.
func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.callbackNotFound
}

// SetTextFallback sets the handler for text that matches no command or state.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.textFallback = h
}

// TextFallback returns the handler for unmatched text.
func (r *Registry) TextFallback() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.textFallback
}

// InitBotCommands publishes the visible commands as the bot's menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	if err := bot.SetCommands(reg.ListCommands(true)); err != nil {
		logger.TWire.LogAttrs(context.Background(), slog.LevelError, "register.commands.set_failed",
			slog.String("err", err.Error()),
		)
	}
}
