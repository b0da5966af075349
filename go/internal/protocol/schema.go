package protocol

import (
	"github.com/invopop/jsonschema"
)

// inboundCatalog lists every client message keyed by its envelope type.
type inboundCatalog struct {
	JoinSession              JoinSession              `json:"join_session"`
	StartQuestion            StartQuestion            `json:"start_question"`
	SubmitAnswer             SubmitAnswer             `json:"submit_answer"`
	Reaction                 Reaction                 `json:"reaction"`
	ForceReveal              ForceReveal              `json:"force_reveal"`
	AdvanceNext              AdvanceNext              `json:"advance_next"`
	ToggleAutoNext           ToggleAutoNext           `json:"toggle_auto_next"`
	ToggleSpectatorReactions ToggleSpectatorReactions `json:"toggle_spectator_reactions"`
	TransferHost             TransferHost             `json:"transfer_host"`
}

// InboundSchema describes the data payload of every inbound message type.
func InboundSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(inboundCatalog))
	schema.Title = "Quiz session inbound messages"
	schema.Description = "Data payloads keyed by envelope type"
	return schema
}
