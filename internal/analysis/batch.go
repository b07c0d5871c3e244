package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"codedocs/internal/llm"
)

// batchSize is how many files are combined into one generation call.
const batchSize = 10

// maxFileChars truncates each file's content inside a combined batch
// prompt to bound token cost.
const maxFileChars = 5000

// BatchClient wraps one call-and-parse cycle against the generation
// service: send a combined batch prompt, extract a JSON array from the
// noisy response, and hand validated elements to the caller.
type BatchClient struct {
	LLM llm.Client
}

// Analyze runs one batch. Any transport or parse failure is contained
// here: it is logged and yields zero elements, never an error, so a
// malformed model response costs at most one batch.
func (c *BatchClient) Analyze(ctx context.Context, prompt, system string) []json.RawMessage {
	resp, err := c.LLM.Complete(ctx, llm.CompletionRequest{
		Prompt:    prompt,
		System:    system,
		MaxTokens: 4000,
	})
	if err != nil {
		log.Printf("batch analysis call failed: %v", err)
		return nil
	}
	return ExtractJSONArray(resp)
}

// ExtractJSONArray pulls a single well-formed JSON array out of a
// generative model's response, tolerating prose wrapping and fenced code
// blocks. Unparseable input yields an empty result with a logged warning.
func ExtractJSONArray(raw string) []json.RawMessage {
	s := strings.TrimSpace(raw)

	if body, ok := extractFencedBlock(s); ok {
		s = body
	}

	// Slice from the first '[' to the last ']'.
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start == -1 || end == -1 || end < start {
		log.Printf("batch analysis: no JSON array in response (%d bytes)", len(raw))
		return nil
	}
	s = strings.TrimSpace(s[start : end+1])

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(s), &elements); err != nil {
		log.Printf("batch analysis: JSON parse error: %v", err)
		return nil
	}
	return elements
}

// extractFencedBlock returns the body of a ```json block if present, else
// the body of the first fenced block, skipping a short language-tag line.
// The json tag is matched byte-aligned on the original string; lowercasing
// can change byte offsets for non-ASCII input.
func extractFencedBlock(s string) (string, bool) {
	idx := strings.Index(s, "```json")
	if idx == -1 {
		idx = strings.Index(s, "```JSON")
	}
	if idx != -1 {
		start := strings.Index(s[idx:], "\n")
		if start == -1 {
			return "", false
		}
		start += idx + 1
		end := strings.Index(s[start:], "```")
		if end == -1 {
			end = len(s) - start
		}
		return strings.TrimSpace(s[start : start+end]), true
	}

	idx = strings.Index(s, "```")
	if idx == -1 {
		return "", false
	}
	start := idx + 3
	// Skip a language identifier if present.
	if nl := strings.Index(s[start:], "\n"); nl != -1 && nl < 20 {
		start += nl + 1
	}
	end := strings.Index(s[start:], "```")
	if end == -1 {
		end = len(s) - start
	}
	return strings.TrimSpace(s[start : start+end]), true
}

type batchFile struct {
	Path    string
	Content string
}

// combineBatch concatenates a batch of files into one prompt context,
// truncating each file to the per-file character budget.
func combineBatch(files []batchFile) string {
	var b strings.Builder
	for _, f := range files {
		content := f.Content
		if len(content) > maxFileChars {
			content = content[:maxFileChars]
		}
		fmt.Fprintf(&b, "\n\n### File: %s\n```\n%s\n```", f.Path, content)
	}
	return b.String()
}

// splitBatches groups files into fixed-size batches, keeping the number of
// external calls proportional to file count / batch size.
func splitBatches(files []batchFile) [][]batchFile {
	var batches [][]batchFile
	for start := 0; start < len(files); start += batchSize {
		end := start + batchSize
		if end > len(files) {
			end = len(files)
		}
		batches = append(batches, files[start:end])
	}
	return batches
}
