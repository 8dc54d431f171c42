package dispatch

import (
	"context"
	"fmt"

	"github.com/charlabot/charla/pkg/classify"
)

// SmalltalkHandler answers the conversational labels with canned
// replies. Questions get a deflection pointing at the command surface;
// free-form natural-language answers are out of scope.
type SmalltalkHandler struct {
	prefix string
}

func NewSmalltalkHandler(prefix string) *SmalltalkHandler {
	return &SmalltalkHandler{prefix: prefix}
}

func (h *SmalltalkHandler) Name() string  { return "smalltalk" }
func (h *SmalltalkHandler) Priority() int { return PrioritySmalltalk }

func (h *SmalltalkHandler) Accepts(b *Bundle) bool {
	switch b.Classification.Label {
	case classify.LabelGreeting, classify.LabelFarewell, classify.LabelHelpRequest, classify.LabelQuestion:
		return true
	}
	return false
}

func (h *SmalltalkHandler) Handle(_ context.Context, b *Bundle) (*Result, error) {
	name := b.User.DisplayName

	switch b.Classification.Label {
	case classify.LabelGreeting:
		if name != "" {
			return &Result{Reply: fmt.Sprintf("¡Hola, %s! ¿En qué te puedo ayudar?", name)}, nil
		}
		return &Result{Reply: fmt.Sprintf("¡Hola! ¿En qué te puedo ayudar? Si es tu primera vez, escribe %sregister.", h.prefix)}, nil

	case classify.LabelFarewell:
		if name != "" {
			return &Result{Reply: fmt.Sprintf("¡Hasta luego, %s!", name)}, nil
		}
		return &Result{Reply: "¡Hasta luego!"}, nil

	case classify.LabelHelpRequest:
		return &Result{Reply: fmt.Sprintf("Claro, puedo ayudarte. Escribe %shelp para ver los comandos disponibles.", h.prefix)}, nil

	case classify.LabelQuestion:
		return &Result{Reply: fmt.Sprintf("Buena pregunta, pero todavía no sé responder preguntas abiertas. Escribe %shelp para ver lo que sí puedo hacer.", h.prefix)}, nil
	}

	return nil, nil
}
