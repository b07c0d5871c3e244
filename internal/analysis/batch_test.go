package analysis

import (
	"context"
	"strings"
	"testing"

	"codedocs/internal/llm"
)

func TestExtractJSONArrayPlain(t *testing.T) {
	got := ExtractJSONArray(`[{"a":1},{"b":2}]`)
	if len(got) != 2 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayFencedJSON(t *testing.T) {
	raw := "Here are the findings:\n```json\n[{\"severity\":\"high\"}]\n```\nDone."
	got := ExtractJSONArray(raw)
	if len(got) != 1 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayFencedJSONAfterMultibyteText(t *testing.T) {
	// A prefix whose lowercase form has a different byte length must not
	// shift the fence offset.
	raw := "İşte İstenen sonuç:\n```json\n[{\"a\":1},{\"b\":2}]\n```"
	got := ExtractJSONArray(raw)
	if len(got) != 2 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayUppercaseFenceTag(t *testing.T) {
	raw := "```JSON\n[1]\n```"
	got := ExtractJSONArray(raw)
	if len(got) != 1 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayGenericFence(t *testing.T) {
	raw := "```\n[1, 2, 3]\n```"
	got := ExtractJSONArray(raw)
	if len(got) != 3 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayProseWrapped(t *testing.T) {
	raw := "The issues I found are [\"x\", \"y\"] as requested."
	got := ExtractJSONArray(raw)
	if len(got) != 2 {
		t.Fatalf("got %d elements", len(got))
	}
}

func TestExtractJSONArrayGarbage(t *testing.T) {
	for _, raw := range []string{"", "no array here", "{\"an\":\"object\"}", "[broken"} {
		if got := ExtractJSONArray(raw); len(got) != 0 {
			t.Fatalf("raw %q: got %d elements, want 0", raw, len(got))
		}
	}
}

func TestAnalyzeContainsFailures(t *testing.T) {
	c := &BatchClient{LLM: &llm.FakeClient{Err: context.DeadlineExceeded}}
	if got := c.Analyze(context.Background(), "p", "s"); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}

func TestCombineBatchTruncates(t *testing.T) {
	long := strings.Repeat("x", maxFileChars+100)
	combined := combineBatch([]batchFile{{Path: "a.py", Content: long}})
	if !strings.Contains(combined, "### File: a.py") {
		t.Fatalf("missing file header: %q", combined[:80])
	}
	if strings.Contains(combined, strings.Repeat("x", maxFileChars+1)) {
		t.Fatal("content was not truncated")
	}
}

func TestSplitBatchesSize(t *testing.T) {
	files := make([]batchFile, 23)
	batches := splitBatches(files)
	if len(batches) != 3 {
		t.Fatalf("got %d batches", len(batches))
	}
	if len(batches[0]) != batchSize || len(batches[2]) != 3 {
		t.Fatalf("batch sizes: %d, %d, %d", len(batches[0]), len(batches[1]), len(batches[2]))
	}
}
