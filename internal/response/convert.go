// Package response adapts heterogeneous tool return payloads into the
// canonical function-response envelope fed back to the model.
package response

// Part mirrors the tagged content unit a tool may return: plain text, or
// binary data carried by either inlineData or fileData.
type Part struct {
	Text       string
	InlineData *BlobRef
	FileData   *BlobRef
}

// BlobRef names the MIME type of a binary payload a tool produced.
type BlobRef struct {
	MimeType string
}

func (p Part) isText() bool {
	return p.Text != "" && p.InlineData == nil && p.FileData == nil
}

func (p Part) isEmpty() bool {
	return p.Text == "" && p.InlineData == nil && p.FileData == nil
}

func (p Part) binaryMimeType() (string, bool) {
	if p.InlineData != nil {
		return p.InlineData.MimeType, true
	}
	if p.FileData != nil {
		return p.FileData.MimeType, true
	}
	return "", false
}

// FunctionResponse is the envelope returned to the model for one tool call.
type FunctionResponse struct {
	Name   string
	ID     string
	Output string
}

// Envelope is the full response list for one tool call: the function
// response envelope first, followed by any raw Parts (binary payloads)
// the tool produced.
type Envelope struct {
	FunctionResponse FunctionResponse
	Parts            []Part
}

// LLMContent is whatever shape a tool's raw output took: a plain string,
// a single Part, or a list of Parts. Exactly one of these should be set.
type LLMContent struct {
	Text  *string
	Part  *Part
	Parts []Part
}

// ConvertToFunctionResponse normalizes a tool's llmContent into the
// canonical envelope per §4.5.
func ConvertToFunctionResponse(name, id string, content LLMContent) Envelope {
	switch {
	case content.Text != nil:
		return envelope(name, id, *content.Text, nil)

	case content.Part != nil:
		return convertParts(name, id, []Part{*content.Part}, false)

	case content.Parts != nil:
		return convertParts(name, id, content.Parts, true)

	default:
		return envelope(name, id, "Tool execution succeeded.", nil)
	}
}

func convertParts(name, id string, parts []Part, wasList bool) Envelope {
	if len(parts) == 0 {
		return envelope(name, id, "Tool execution succeeded.", nil)
	}

	if len(parts) == 1 {
		p := parts[0]
		switch {
		case p.isEmpty():
			out := "Tool execution succeeded."
			if wasList {
				return envelope(name, id, out, parts)
			}
			return envelope(name, id, out, nil)
		case p.isText():
			return envelope(name, id, p.Text, nil)
		default:
			if mime, ok := p.binaryMimeType(); ok {
				out := "Binary content of type " + mime + " was processed."
				return envelope(name, id, out, []Part{p})
			}
			// Generic non-text, non-binary single part: only append the
			// original part back when the tool returned it inside a list.
			out := "Tool execution succeeded."
			if wasList {
				return envelope(name, id, out, parts)
			}
			return envelope(name, id, out, nil)
		}
	}

	// Multiple parts: always "succeeded", append all original parts.
	return envelope(name, id, "Tool execution succeeded.", parts)
}

func envelope(name, id, output string, trailing []Part) Envelope {
	return Envelope{
		FunctionResponse: FunctionResponse{Name: name, ID: id, Output: output},
		Parts:            trailing,
	}
}
