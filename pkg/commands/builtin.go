package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charlabot/charla/pkg/registration"
	"github.com/charlabot/charla/pkg/users"
)

// BuiltinDefinitions returns the stock catalog. The registry rejects
// collisions, so deployments extending this list find out at startup.
func BuiltinDefinitions() []Definition {
	return []Definition{
		{
			Name:        "help",
			Aliases:     []string{"ayuda", "comandos"},
			Description: "Muestra los comandos disponibles",
			Usage:       "/help",
			Examples:    []string{"/help"},
			MinLevel:    users.LevelGuest,
			Handler:     handleHelp,
		},
		{
			Name:        "whoami",
			Aliases:     []string{"quiensoy"},
			Description: "Muestra tu identidad y nivel de permisos",
			Usage:       "/whoami",
			Examples:    []string{"/whoami"},
			MinLevel:    users.LevelGuest,
			Handler:     handleWhoami,
		},
		{
			Name:        "register",
			Aliases:     []string{"registro", "registrarme"},
			Description: "Registra tu nombre",
			Usage:       "/register [nombre]",
			Examples:    []string{"/register", "/register Ana María"},
			MinLevel:    users.LevelGuest,
			Handler:     handleRegister,
		},
		{
			Name:        "status",
			Aliases:     []string{"estado"},
			Description: "Estado del bot: conexión, usuarios y contextos",
			Usage:       "/status",
			Examples:    []string{"/status"},
			MinLevel:    users.LevelModerator,
			Handler:     handleStatus,
		},
		{
			Name:        "chats",
			Description: "Lista los chats conocidos por el puente",
			Usage:       "/chats",
			Examples:    []string{"/chats"},
			MinLevel:    users.LevelAdmin,
			Handler:     handleChats,
		},
		{
			Name:        "history",
			Aliases:     []string{"historial"},
			Description: "Muestra los últimos mensajes de un chat",
			Usage:       "/history <chat> [n]",
			Examples:    []string{"/history 521555000001 10"},
			MinLevel:    users.LevelAdmin,
			Handler:     handleHistory,
		},
		{
			Name:        "promote",
			Aliases:     []string{"nivel"},
			Description: "Cambia el nivel de permisos de un usuario",
			Usage:       "/promote <identidad> <nivel>",
			Examples:    []string{"/promote 521555000002 moderator"},
			MinLevel:    users.LevelOwner,
			Handler:     handlePromote,
		},
		{
			Name:        "ban",
			Aliases:     []string{"bloquear"},
			Description: "Bloquea a un usuario",
			Usage:       "/ban <identidad>",
			Examples:    []string{"/ban 521555000002"},
			MinLevel:    users.LevelOwner,
			Handler:     handleBan,
		},
		{
			Name:        "unban",
			Aliases:     []string{"desbloquear"},
			Description: "Desbloquea a un usuario",
			Usage:       "/unban <identidad>",
			Examples:    []string{"/unban 521555000002"},
			MinLevel:    users.LevelOwner,
			Handler:     handleUnban,
		},
	}
}

func handleHelp(_ context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Registry == nil {
		return &Response{Reply: "No hay comandos disponibles."}, nil
	}
	level := users.LevelGuest
	if req.Caller != nil {
		level = req.Caller.Level
	}
	return &Response{Reply: FormatHelpMessage(req.Env.Registry.ListFor(level))}, nil
}

// FormatHelpMessage renders the help listing for a definition set.
func FormatHelpMessage(defs []Definition) string {
	if len(defs) == 0 {
		return "No hay comandos disponibles."
	}

	lines := make([]string, 0, len(defs)+1)
	lines = append(lines, "Comandos disponibles:")
	for _, def := range defs {
		usage := def.Usage
		if usage == "" {
			usage = "/" + def.Name
		}
		desc := def.Description
		if desc == "" {
			desc = "Sin descripción"
		}
		lines = append(lines, fmt.Sprintf("%s - %s", usage, desc))
	}
	return strings.Join(lines, "\n")
}

func handleWhoami(_ context.Context, req Request) (*Response, error) {
	u := req.Caller
	if u == nil {
		return &Response{Reply: "No te encuentro en el registro."}, nil
	}

	name := u.DisplayName
	if name == "" {
		name = "(sin registrar)"
	}
	registered := "no"
	if u.Registered {
		registered = "sí"
	}
	reply := fmt.Sprintf(
		"Identidad: %s\nNombre: %s\nNivel: %s\nRegistrado: %s",
		u.Identity, name, u.Level, registered,
	)
	return &Response{Reply: reply}, nil
}

func handleRegister(ctx context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Users == nil {
		return nil, fmt.Errorf("user store unavailable")
	}

	// With a name argument, register in one step.
	if len(req.Args) > 0 {
		candidate := strings.Join(req.Args, " ")
		if err := users.ValidateDisplayName(candidate); err != nil {
			return &Response{Reply: registration.ValidationReply(err)}, nil
		}
		if _, err := registration.Complete(ctx, req.Env.Users, req.Caller, candidate); err != nil {
			return nil, err
		}
		return &Response{Reply: registration.ConfirmReply(candidate), ClearContext: true}, nil
	}

	if req.Caller != nil && req.Caller.Registered {
		reply := fmt.Sprintf(
			"Ya estás registrado como %s. Usa /register <nombre> para cambiar tu nombre.",
			req.Caller.DisplayName,
		)
		return &Response{Reply: reply}, nil
	}

	prompt, partial := registration.Start()
	return &Response{Reply: prompt, OpenContext: partial}, nil
}

func handleStatus(ctx context.Context, req Request) (*Response, error) {
	env := req.Env
	if env == nil {
		return nil, fmt.Errorf("command environment unavailable")
	}

	lines := []string{"Estado de charla:"}

	if env.Version != "" {
		lines = append(lines, fmt.Sprintf("Versión: %s", env.Version))
	}
	if !env.StartedAt.IsZero() {
		lines = append(lines, fmt.Sprintf("Activo desde hace: %s", time.Since(env.StartedAt).Round(time.Second)))
	}

	if env.Transport != nil {
		st := env.Transport.Status()
		if st.Connected {
			lines = append(lines, fmt.Sprintf("Puente: conectado (%s)", st.Identity))
		} else {
			lines = append(lines, "Puente: desconectado")
		}
	} else {
		lines = append(lines, "Puente: deshabilitado")
	}

	if env.Contexts != nil {
		lines = append(lines, fmt.Sprintf("Contextos activos: %d", env.Contexts.ActiveCount()))
	}
	if env.Users != nil {
		if count, err := env.Users.Count(ctx); err == nil {
			lines = append(lines, fmt.Sprintf("Usuarios conocidos: %d", count))
		}
	}

	return &Response{Reply: strings.Join(lines, "\n")}, nil
}

func handleChats(ctx context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Transport == nil {
		return &Response{Reply: "El puente está deshabilitado."}, nil
	}

	chats, err := req.Env.Transport.Chats(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch chat list: %w", err)
	}
	if len(chats) == 0 {
		return &Response{Reply: "No hay chats registrados todavía."}, nil
	}

	lines := make([]string, 0, len(chats)+1)
	lines = append(lines, fmt.Sprintf("Chats conocidos (%d):", len(chats)))
	for _, chat := range chats {
		name := chat.Name
		if name == "" {
			name = "(sin nombre)"
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", chat.ID, name))
	}
	return &Response{Reply: strings.Join(lines, "\n")}, nil
}

func handleHistory(_ context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Transport == nil {
		return &Response{Reply: "El puente está deshabilitado."}, nil
	}
	if len(req.Args) < 1 {
		return &Response{Reply: "Uso: /history <chat> [n]"}, nil
	}

	limit := 10
	if len(req.Args) > 1 {
		n, err := strconv.Atoi(req.Args[1])
		if err != nil || n < 1 {
			return &Response{Reply: "Uso: /history <chat> [n]"}, nil
		}
		limit = n
	}

	entries := req.Env.Transport.History(req.Args[0], limit)
	if len(entries) == 0 {
		return &Response{Reply: "No tengo mensajes recientes de ese chat."}, nil
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.At.Format("15:04"), e.Sender, e.Text))
	}
	return &Response{Reply: strings.Join(lines, "\n")}, nil
}

func handlePromote(ctx context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Users == nil {
		return nil, fmt.Errorf("user store unavailable")
	}
	if len(req.Args) != 2 {
		return &Response{Reply: "Uso: /promote <identidad> <nivel>"}, nil
	}

	identity := req.Args[0]
	level, err := users.ParseLevel(req.Args[1])
	if err != nil {
		return &Response{Reply: fmt.Sprintf("Nivel desconocido: %s. Usa guest, user, moderator, admin u owner.", req.Args[1])}, nil
	}
	if req.Env.Owner != "" && identity == req.Env.Owner && level != users.LevelOwner {
		return &Response{Reply: "No puedo cambiar el nivel del dueño."}, nil
	}

	target, err := req.Env.Users.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &Response{Reply: fmt.Sprintf("No conozco a %s.", identity)}, nil
	}

	if _, err := req.Env.Users.Update(ctx, identity, users.Update{Level: &level}); err != nil {
		return nil, err
	}
	return &Response{Reply: fmt.Sprintf("Listo: %s ahora tiene nivel %s.", identity, level)}, nil
}

func handleBan(ctx context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Users == nil {
		return nil, fmt.Errorf("user store unavailable")
	}
	if len(req.Args) != 1 {
		return &Response{Reply: "Uso: /ban <identidad>"}, nil
	}

	identity := req.Args[0]
	if req.Env.Owner != "" && identity == req.Env.Owner {
		return &Response{Reply: "No puedo bloquear al dueño."}, nil
	}

	target, err := req.Env.Users.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &Response{Reply: fmt.Sprintf("No conozco a %s.", identity)}, nil
	}

	blocked := users.LevelBlocked
	if _, err := req.Env.Users.Update(ctx, identity, users.Update{Level: &blocked}); err != nil {
		return nil, err
	}
	return &Response{Reply: fmt.Sprintf("%s queda bloqueado.", identity)}, nil
}

func handleUnban(ctx context.Context, req Request) (*Response, error) {
	if req.Env == nil || req.Env.Users == nil {
		return nil, fmt.Errorf("user store unavailable")
	}
	if len(req.Args) != 1 {
		return &Response{Reply: "Uso: /unban <identidad>"}, nil
	}

	identity := req.Args[0]
	target, err := req.Env.Users.FindByIdentity(ctx, identity)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return &Response{Reply: fmt.Sprintf("No conozco a %s.", identity)}, nil
	}
	if target.Level != users.LevelBlocked {
		return &Response{Reply: fmt.Sprintf("%s no está bloqueado.", identity)}, nil
	}

	// A registered user returns to user level, an unregistered one to
	// guest.
	restored := users.LevelGuest
	if target.Registered {
		restored = users.LevelUser
	}
	if _, err := req.Env.Users.Update(ctx, identity, users.Update{Level: &restored}); err != nil {
		return nil, err
	}
	return &Response{Reply: fmt.Sprintf("%s queda desbloqueado con nivel %s.", identity, restored)}, nil
}
