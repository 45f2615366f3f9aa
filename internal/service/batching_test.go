package service

import (
	"reflect"
	"strings"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
)

func call(id, model string) memberCall {
	return memberCall{crewID: id, model: model, config: &crew.Config{ID: id, SystemPrompt: "persona of " + id, Temperature: 0.5, MaxTokens: 100}}
}

func TestPlanBatches(t *testing.T) {
	calls := []memberCall{
		call("a", "m1"), call("b", "m2"), call("c", "m1"), call("d", "m1"), call("e", "m2"),
	}
	got := planBatches(calls, 2)

	var shape [][]string
	var models []string
	for _, b := range got {
		shape = append(shape, b.ids())
		models = append(models, b.model)
	}
	wantShape := [][]string{{"a", "c"}, {"d"}, {"b", "e"}}
	if !reflect.DeepEqual(shape, wantShape) {
		t.Errorf("batches = %v, want %v", shape, wantShape)
	}
	if !reflect.DeepEqual(models, []string{"m1", "m1", "m2"}) {
		t.Errorf("models = %v", models)
	}
}

func TestSplitBatchResponse(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		expected []string
		want     map[string]string
		missing  []string
		reason   string
	}{
		{
			name:     "all sections",
			content:  "[[crew:a]]\nalpha\n[[crew:b]]\nbeta\n",
			expected: []string{"a", "b"},
			want:     map[string]string{"a": "alpha", "b": "beta"},
		},
		{
			name:     "unexpected id dropped",
			content:  "[[crew:a]]\nalpha\n[[crew:intruder]]\nsneaky\n[[crew:b]]\nbeta",
			expected: []string{"a", "b"},
			want:     map[string]string{"a": "alpha", "b": "beta"},
		},
		{
			name:     "first duplicate wins",
			content:  "[[crew:a]]\nfirst\n[[crew:a]]\nsecond\n[[crew:b]]\nbeta",
			expected: []string{"a", "b"},
			want:     map[string]string{"a": "first", "b": "beta"},
		},
		{
			name:     "multi-line section and indentation",
			content:  "  [[crew:a]]  \nline one\nline two\r\n[[crew:b]]\r\nbeta",
			expected: []string{"a", "b"},
			want:     map[string]string{"a": "line one\nline two", "b": "beta"},
		},
		{
			name:     "missing section",
			content:  "[[crew:a]]\nalpha",
			expected: []string{"a", "b"},
			want:     map[string]string{"a": "alpha"},
			missing:  []string{"b"},
			reason:   "sections missing or empty",
		},
		{
			name:     "empty section counts as missing",
			content:  "[[crew:a]]\n\n[[crew:b]]\nbeta",
			expected: []string{"a", "b"},
			want:     map[string]string{"b": "beta"},
			missing:  []string{"a"},
			reason:   "sections missing or empty",
		},
		{
			name:     "no delimiters",
			content:  "Here is my answer for everyone.",
			expected: []string{"a", "b"},
			want:     map[string]string{},
			missing:  []string{"a", "b"},
			reason:   "no section delimiters found",
		},
		{
			name:     "inline marker is not a delimiter",
			content:  "see [[crew:a]] above\n[[crew:b]]\nbeta",
			expected: []string{"a", "b"},
			want:     map[string]string{"b": "beta"},
			missing:  []string{"a"},
			reason:   "sections missing or empty",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, perr := splitBatchResponse("m", tt.content, tt.expected)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sections = %q, want %q", got, tt.want)
			}
			if tt.missing == nil {
				if perr != nil {
					t.Fatalf("unexpected parse error: %v", perr)
				}
				return
			}
			if perr == nil {
				t.Fatal("expected parse error")
			}
			if !reflect.DeepEqual(perr.Missing, tt.missing) || perr.Reason != tt.reason || perr.Model != "m" {
				t.Errorf("parse error = %+v", perr)
			}
		})
	}
}

func TestBatchMessagesCarryEveryMarker(t *testing.T) {
	b := batch{model: "m", members: []memberCall{call("a", "m"), call("b", "m")}}
	msgs := batchMessages(b, "do the thing", map[string]string{"priority": "high", "area": "api"})
	if len(msgs) != 2 || msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Fatalf("messages = %+v", msgs)
	}
	for _, id := range []string{"a", "b"} {
		if !strings.Contains(msgs[0].Content, "[[crew:"+id+"]]\npersona of "+id) {
			t.Errorf("system prompt lacks section for %s:\n%s", id, msgs[0].Content)
		}
	}
	if !strings.Contains(msgs[1].Content, "- area: api\n- priority: high") {
		t.Errorf("context not rendered in key order:\n%s", msgs[1].Content)
	}

	temp, maxTokens := batchParams(b)
	if temp != 0.5 || maxTokens != 200 {
		t.Errorf("params = %v/%d", temp, maxTokens)
	}
}

func TestSplitUsage(t *testing.T) {
	if got := splitUsage(10, 3); !reflect.DeepEqual(got, []int64{4, 3, 3}) {
		t.Errorf("splitUsage(10,3) = %v", got)
	}
	if got := splitUsage(5, 0); len(got) != 0 {
		t.Errorf("splitUsage(5,0) = %v", got)
	}
}
