package session

import "modeld/pkg/types"

// TemplateApplier is the conversation/prompt-template layer's interface
// (SPEC_FULL §4.4 expansion of spec.md §6's SendMessage/SendMessageAsync):
// the template layer itself — chat formatting, special tokens, role
// markers — is an out-of-scope collaborator (spec §1), so SendMessage only
// consumes this narrow seam to turn a wire Message into prefill tokens and,
// when apply_template_in_session is set, the assistant-turn-start suffix
// RunDecodeAsync prepends as a silent tail-prefill.
type TemplateApplier interface {
	// ApplyPrompt renders msg (and any templating state the applier keeps
	// internally, e.g. running chat history) into pre-tokenized content.
	ApplyPrompt(msg types.Message) ([]int32, error)
	// TemplateSuffix returns the tokens that open the assistant's turn
	// (e.g. a role marker), or nil if the template needs none.
	TemplateSuffix() []int32
}

// SendMessageAsync is the embedder-facing composed operation (spec §6
// Session::SendMessageAsync): apply the template, then GenerateContentStream.
func (s *Session) SendMessageAsync(applier TemplateApplier, msg types.Message, applyTemplateInSession bool, opts DecodeOptions, cb func(types.Responses)) (*Handle, error) {
	contents, err := applier.ApplyPrompt(msg)
	if err != nil {
		return nil, err
	}
	return s.GenerateContentStream(contents, applyTemplateInSession, applier.TemplateSuffix(), opts, cb), nil
}

// SendMessage is the synchronous round-trip wrapper (spec §6
// Session::SendMessage).
func (s *Session) SendMessage(applier TemplateApplier, msg types.Message, applyTemplateInSession bool, opts DecodeOptions) (types.Responses, error) {
	contents, err := applier.ApplyPrompt(msg)
	if err != nil {
		return types.Responses{}, err
	}
	return s.GenerateContent(contents, applyTemplateInSession, applier.TemplateSuffix(), opts)
}
