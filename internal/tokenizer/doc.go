// Package tokenizer maps text to the integer token ids the model trains on.
//
// Two strategies are provided:
//   - Char: one id per distinct rune of a training text, ids assigned in
//     rune order. Small vocabularies suit small models.
//   - TikToken: OpenAI BPE encodings (cl100k_base, p50k_base, r50k_base).
//
// A tokenizer is persisted next to a checkpoint as a Descriptor so that
// generation rebuilds the exact vocabulary used for training:
//
//	tok := tokenizer.NewChar(text)
//	ids, err := tok.Encode(text)
//	...
//	desc, err := tokenizer.Describe(tok)
//	// store desc as JSON, later:
//	tok2, err := desc.Tokenizer()
package tokenizer
