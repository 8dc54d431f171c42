package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/charlabot/charla/pkg/logger"
	"github.com/charlabot/charla/pkg/users"
)

// Registry maps command names and aliases to their definitions.
type Registry struct {
	defs  []Definition
	byKey map[string]int
}

// NewRegistry builds the registry from the full definition set. A name
// or alias colliding with an existing entry is a configuration error
// that must prevent startup, so it is returned instead of logged away.
func NewRegistry(defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:  defs,
		byKey: make(map[string]int),
	}
	for i, def := range defs {
		if strings.TrimSpace(def.Name) == "" {
			return nil, fmt.Errorf("command definition %d has no name", i)
		}
		if def.Handler == nil {
			return nil, fmt.Errorf("command %q has no handler", def.Name)
		}
		for _, key := range append([]string{def.Name}, def.Aliases...) {
			key = strings.ToLower(strings.TrimSpace(key))
			if key == "" {
				return nil, fmt.Errorf("command %q has an empty alias", def.Name)
			}
			if prev, ok := r.byKey[key]; ok {
				return nil, fmt.Errorf("command name %q already registered by %q", key, defs[prev].Name)
			}
			r.byKey[key] = i
		}
	}
	return r, nil
}

// Resolve finds a definition by name or alias, case-insensitively.
func (r *Registry) Resolve(nameOrAlias string) (*Definition, bool) {
	i, ok := r.byKey[strings.ToLower(strings.TrimSpace(nameOrAlias))]
	if !ok {
		return nil, false
	}
	return &r.defs[i], true
}

// Has reports whether a name or alias is registered. The classifier
// uses this as its command lookup.
func (r *Registry) Has(nameOrAlias string) bool {
	_, ok := r.Resolve(nameOrAlias)
	return ok
}

// ListFor returns the definitions the given level may execute, sorted
// by name. Aliases do not produce duplicate entries.
func (r *Registry) ListFor(level users.Level) []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		if level.Allows(def.MinLevel) {
			out = append(out, def)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute resolves, permission-checks, and runs a command. Unknown
// names and permission denials come back as distinct outcomes with no
// handler invocation and no side effects.
func (r *Registry) Execute(ctx context.Context, env *Env, caller *users.User, name string, args []string, req Request) ExecResult {
	def, ok := r.Resolve(name)
	if !ok {
		return ExecResult{Outcome: OutcomeUnknown, Command: name}
	}

	if caller == nil || !caller.Level.Allows(def.MinLevel) {
		r.logExecution(ctx, env, def.Name, caller, args, false)
		return ExecResult{Outcome: OutcomeDenied, Command: def.Name}
	}

	req.Env = env
	req.Caller = caller
	req.Args = args

	resp, err := def.Handler(ctx, req)
	r.logExecution(ctx, env, def.Name, caller, args, err == nil)
	if err != nil {
		return ExecResult{Outcome: OutcomeFailed, Command: def.Name, Err: err}
	}
	if resp == nil {
		resp = &Response{}
	}
	return ExecResult{Outcome: OutcomeOK, Command: def.Name, Response: resp}
}

func (r *Registry) logExecution(ctx context.Context, env *Env, name string, caller *users.User, args []string, success bool) {
	if env == nil || env.Log == nil {
		return
	}
	identity := ""
	if caller != nil {
		identity = caller.Identity
	}
	if err := env.Log.Append(ctx, name, identity, args, success); err != nil {
		logger.WarnCF("commands", "failed to append command log", map[string]any{
			"command": name,
			"error":   err.Error(),
		})
	}
}
