package lua

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	lua "github.com/yuin/gopher-lua"

	"github.com/goldpress/goldpress/internal/ai"
	"github.com/goldpress/goldpress/internal/content"
	"github.com/goldpress/goldpress/internal/plugin/hostapi"
)

// Hook entry points a guest module may define.
const (
	actionEntry = "handle_action"
	filterEntry = "handle_filter"
)

// Runtime hosts one sandboxed guest per installed plugin and implements the
// dispatcher's Handler by calling the guest's hook entry points. All host
// access from guest code goes through the facade, so every call is
// permission-checked against the calling plugin's id.
type Runtime struct {
	facade *hostapi.Facade
	log    zerolog.Logger

	mu     sync.RWMutex
	guests map[string]*State
}

// NewRuntime creates an empty runtime over the host facade.
func NewRuntime(facade *hostapi.Facade, log zerolog.Logger) *Runtime {
	return &Runtime{
		facade: facade,
		log:    log.With().Str("component", "lua-runtime").Logger(),
		guests: make(map[string]*State),
	}
}

// Load compiles and runs a guest module for a plugin, replacing any previous
// instance. The module's top level runs once at load; hook deliveries call
// its handle_action/handle_filter globals afterwards.
func (r *Runtime) Load(pluginID string, source []byte) error {
	state := NewState()
	r.installHostModule(state, pluginID)

	if err := state.DoString(string(source)); err != nil {
		state.Close()
		return fmt.Errorf("loading guest %s: %w", pluginID, err)
	}

	r.mu.Lock()
	old := r.guests[pluginID]
	r.guests[pluginID] = state
	r.mu.Unlock()

	if old != nil {
		old.Close()
	}

	r.log.Info().Str("plugin", pluginID).Msg("guest module loaded")
	return nil
}

// Unload closes and removes a plugin's guest. Unloading an absent plugin is
// a no-op.
func (r *Runtime) Unload(pluginID string) {
	r.mu.Lock()
	state := r.guests[pluginID]
	delete(r.guests, pluginID)
	r.mu.Unlock()

	if state != nil {
		state.Close()
		r.log.Info().Str("plugin", pluginID).Msg("guest module unloaded")
	}
}

// Loaded returns true if a guest is loaded for the plugin.
func (r *Runtime) Loaded(pluginID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.guests[pluginID]
	return ok
}

// Close unloads every guest.
func (r *Runtime) Close() {
	r.mu.Lock()
	guests := r.guests
	r.guests = make(map[string]*State)
	r.mu.Unlock()

	for _, state := range guests {
		state.Close()
	}
}

// HandleAction delivers an action hook to the plugin's handle_action global.
func (r *Runtime) HandleAction(ctx context.Context, pluginID, hook string, event map[string]any) error {
	state, err := r.guest(pluginID)
	if err != nil {
		return err
	}

	_, err = state.CallGlobal(actionEntry, lua.LString(hook), ToLua(state.L, event))
	return err
}

// HandleFilter delivers a filter hook to the plugin's handle_filter global
// and returns the transformed value, which must be a table.
func (r *Runtime) HandleFilter(ctx context.Context, pluginID, hook string, value map[string]any) (map[string]any, error) {
	state, err := r.guest(pluginID)
	if err != nil {
		return nil, err
	}

	results, err := state.CallGlobal(filterEntry, lua.LString(hook), ToLua(state.L, value))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no value for hook %s", filterEntry, hook)
	}

	transformed, ok := ToGoMap(results[0])
	if !ok {
		return nil, fmt.Errorf("%s returned %s for hook %s, want table", filterEntry, results[0].Type(), hook)
	}
	return transformed, nil
}

// guest returns the loaded state for a plugin id.
func (r *Runtime) guest(pluginID string) (*State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.guests[pluginID]
	if !ok {
		return nil, fmt.Errorf("no guest loaded for plugin %s", pluginID)
	}
	return state, nil
}

// installHostModule exposes the facade as a global host table. Every
// function captures the owning plugin's id, so a guest can only ever act as
// itself. Errors come back Lua-style as (nil, message) so guests can degrade
// gracefully on permission denials.
func (r *Runtime) installHostModule(state *State, pluginID string) {
	log := r.log.With().Str("plugin", pluginID).Logger()

	state.RegisterModule("host", map[string]lua.LGFunction{
		"recent_posts": func(L *lua.LState) int {
			limit := L.OptInt(1, 10)
			posts, err := r.facade.RecentPosts(context.Background(), pluginID, limit)
			if err != nil {
				return pushError(L, err)
			}
			t := L.NewTable()
			for i, post := range posts {
				t.RawSetInt(i+1, postToLua(L, post))
			}
			L.Push(t)
			return 1
		},
		"get_post": func(L *lua.LState) int {
			post, err := r.facade.GetPost(context.Background(), pluginID, L.CheckString(1))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(postToLua(L, post))
			return 1
		},
		"save_post": func(L *lua.LState) int {
			table, ok := ToGoMap(L.CheckTable(1))
			if !ok {
				L.ArgError(1, "expected a post table")
				return 0
			}
			post := postFromMap(table)
			if err := r.facade.SavePost(context.Background(), pluginID, post); err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(post.ID))
			return 1
		},
		"category_stats": func(L *lua.LState) int {
			stats, err := r.facade.CategoryStats(context.Background(), pluginID)
			if err != nil {
				return pushError(L, err)
			}
			L.Push(ToLua(L, stats))
			return 1
		},
		"chat": func(L *lua.LState) int {
			req := ai.Request{Prompt: L.CheckString(1)}
			if L.GetTop() >= 2 {
				req.System = L.OptString(2, "")
			}
			reply, err := r.facade.Chat(context.Background(), pluginID, req)
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(reply))
			return 1
		},
		"get_setting": func(L *lua.LState) int {
			value, err := r.facade.GetSetting(pluginID, L.CheckString(1))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(value))
			return 1
		},
		"set_setting": func(L *lua.LState) int {
			key := L.CheckString(1)
			value := ToGo(L.CheckAny(2))
			if err := r.facade.SetSetting(pluginID, key, value); err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LTrue)
			return 1
		},
		"read_upload": func(L *lua.LState) int {
			data, err := r.facade.ReadUpload(context.Background(), pluginID, L.CheckString(1))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LString(data))
			return 1
		},
		"write_upload": func(L *lua.LState) int {
			name := L.CheckString(1)
			data := L.CheckString(2)
			if err := r.facade.WriteUpload(context.Background(), pluginID, name, []byte(data)); err != nil {
				return pushError(L, err)
			}
			L.Push(lua.LTrue)
			return 1
		},
		"list_uploads": func(L *lua.LState) int {
			names, err := r.facade.ListUploads(context.Background(), pluginID, L.OptString(1, ""))
			if err != nil {
				return pushError(L, err)
			}
			L.Push(ToLua(L, names))
			return 1
		},
		"log": func(L *lua.LState) int {
			log.Info().Msg(L.CheckString(1))
			return 0
		},
	})
}

// pushError returns a host call failure Lua-style: nil plus the message.
func pushError(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

// postToLua converts a post to a guest-visible table.
func postToLua(L *lua.LState, post *content.Post) lua.LValue {
	return ToLua(L, map[string]any{
		"id":         post.ID,
		"title":      post.Title,
		"slug":       post.Slug,
		"content":    post.Content,
		"author":     post.Author,
		"categories": post.Categories,
		"published":  post.Published,
	})
}

// postFromMap builds a post from a guest table.
func postFromMap(m map[string]any) *content.Post {
	post := &content.Post{}
	if v, ok := m["id"].(string); ok {
		post.ID = v
	}
	if v, ok := m["title"].(string); ok {
		post.Title = v
	}
	if v, ok := m["slug"].(string); ok {
		post.Slug = v
	}
	if v, ok := m["content"].(string); ok {
		post.Content = v
	}
	if v, ok := m["author"].(string); ok {
		post.Author = v
	}
	if v, ok := m["published"].(bool); ok {
		post.Published = v
	}
	if cats, ok := m["categories"].([]any); ok {
		for _, c := range cats {
			if s, ok := c.(string); ok {
				post.Categories = append(post.Categories, s)
			}
		}
	}
	return post
}
